// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package strategy

import (
	"fmt"
	"strings"

	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

const (
	// HintBroadcast is hint enforce broadcast join.
	HintBroadcast = "broadcast"
	// HintBroadcastJoin is an alias of HintBroadcast.
	HintBroadcastJoin = "broadcastjoin"
	// HintMapJoin is an alias of HintBroadcast.
	HintMapJoin = "mapjoin"
	// HintShuffleMerge is hint enforce shuffle sort merge join.
	HintShuffleMerge = "shuffle_merge"
	// HintMergeJoin is an alias of HintShuffleMerge.
	HintMergeJoin = "mergejoin"
	// HintMerge is an alias of HintShuffleMerge.
	HintMerge = "merge"
	// HintShuffleHash is hint enforce shuffle hash join.
	HintShuffleHash = "shuffle_hash"
	// HintShuffleReplicateNL is hint enforce shuffle and replicate nested loop join.
	HintShuffleReplicateNL = "shuffle_replicate_nl"
)

var hintStrategies = map[string]Strategy{
	HintBroadcast:          Broadcast,
	HintBroadcastJoin:      Broadcast,
	HintMapJoin:            Broadcast,
	HintShuffleMerge:       ShuffleMerge,
	HintMergeJoin:          ShuffleMerge,
	HintMerge:              ShuffleMerge,
	HintShuffleHash:        ShuffleHash,
	HintShuffleReplicateNL: ShuffleReplicateNL,
}

// LookupHint returns the strategy of a hint name, case-insensitive.
func LookupHint(name string) (Strategy, bool) {
	s, ok := hintStrategies[strings.ToLower(name)]
	return s, ok
}

// HintSide is the relation a hint refers to.
type HintSide int

// Hint sides.
const (
	HintSideAny HintSide = iota
	HintSideLeft
	HintSideRight
)

// Hint is a caller supplied directive forcing a strategy.
type Hint struct {
	Strategy Strategy
	// Name is the hint name as written.
	Name string
	// Tables are the relations named in the hint arguments.
	Tables []string
	// Side is set by Bind when the hint names exactly one side of the join.
	Side HintSide
}

// NewHint creates a hint for strategy s.
func NewHint(s Strategy, tables ...string) *Hint {
	return &Hint{Strategy: s, Name: strings.ToUpper(string(s)), Tables: tables}
}

// String implements fmt.Stringer interface.
func (h *Hint) String() string {
	name := h.Name
	if name == "" {
		name = string(h.Strategy)
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(name), strings.Join(h.Tables, ", "))
}

// matchTable reports whether a hint argument refers to the relation. A
// qualified relation name "db.t" is also matched by "t".
func matchTable(arg, relName string) bool {
	if strings.EqualFold(arg, relName) {
		return true
	}
	if idx := strings.LastIndexByte(relName, '.'); idx >= 0 {
		return strings.EqualFold(arg, relName[idx+1:])
	}
	return false
}

// Bind resolves the hint arguments against the names of the join inputs. It
// returns nil and a warning if the hint names tables which are not inputs of
// the join.
func (h *Hint) Bind(leftName, rightName string) (*Hint, string) {
	if h == nil {
		return nil, ""
	}
	bound := *h
	bound.Side = HintSideAny
	if len(h.Tables) == 0 {
		return &bound, ""
	}
	var hitLeft, hitRight bool
	for _, tbl := range h.Tables {
		hitLeft = hitLeft || matchTable(tbl, leftName)
		hitRight = hitRight || matchTable(tbl, rightName)
	}
	switch {
	case hitLeft && !hitRight:
		bound.Side = HintSideLeft
	case hitRight && !hitLeft:
		bound.Side = HintSideRight
	case !hitLeft && !hitRight:
		return nil, fmt.Sprintf("Hint %s is inapplicable, there are no matching tables %s and %s", h, leftName, rightName)
	}
	return &bound, ""
}

// ParseHints parses a hint comment such as `/*+ BROADCAST(t1), MERGE(t1, t2) */`.
// When several join hints conflict, the one of highest priority is returned
// (BROADCAST > MERGE > SHUFFLE_HASH > SHUFFLE_REPLICATE_NL) and the others are
// reported as warnings, as are unknown hints. The hint is nil if text holds
// no join hint.
func ParseHints(text string) (*Hint, []string, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "/*+") {
		if !strings.HasSuffix(body, "*/") {
			return nil, nil, joinerrors.ErrHintSyntax.GenWithStackByArgs(len(text), "unterminated comment")
		}
		body = body[3 : len(body)-2]
	}

	parsed, err := newHintScanner(body).scanAll()
	if err != nil {
		return nil, nil, err
	}

	var (
		warnings []string
		chosen   *Hint
	)
	for _, h := range parsed {
		s, ok := LookupHint(h.Name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Hint %s is ignored due to unknown hint name", h))
			continue
		}
		h.Strategy = s
		switch {
		case chosen == nil:
			chosen = h
		case chosen.Strategy == s:
			chosen.Tables = append(chosen.Tables, h.Tables...)
		case s.priority() > chosen.Strategy.priority():
			warnings = append(warnings, conflictWarning(chosen, h))
			chosen = h
		default:
			warnings = append(warnings, conflictWarning(h, chosen))
		}
	}
	return chosen, warnings, nil
}

func conflictWarning(ignored, chosen *Hint) string {
	return fmt.Sprintf("Join hints are conflict, %s is ignored in favor of %s", ignored, chosen)
}

type hintScanner struct {
	src string
	pos int
}

func newHintScanner(src string) *hintScanner {
	return &hintScanner{src: src}
}

func (s *hintScanner) skipSpaceAndCommas() {
	for s.pos < len(s.src) && (isSpace(s.src[s.pos]) || s.src[s.pos] == ',') {
		s.pos++
	}
}

func (s *hintScanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *hintScanner) ident() string {
	start := s.pos
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *hintScanner) scanAll() ([]*Hint, error) {
	var hints []*Hint
	for {
		s.skipSpaceAndCommas()
		if s.pos >= len(s.src) {
			return hints, nil
		}
		h, err := s.scanHint()
		if err != nil {
			return nil, err
		}
		hints = append(hints, h)
	}
}

func (s *hintScanner) scanHint() (*Hint, error) {
	name := s.ident()
	if name == "" {
		return nil, joinerrors.ErrHintSyntax.GenWithStackByArgs(s.pos, fmt.Sprintf("unexpected %q", s.src[s.pos]))
	}
	h := &Hint{Name: name}
	s.skipSpace()
	if s.pos >= len(s.src) || s.src[s.pos] != '(' {
		return h, nil
	}
	s.pos++
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return nil, joinerrors.ErrHintSyntax.GenWithStackByArgs(s.pos, "missing ')'")
		}
		if s.src[s.pos] == ')' {
			s.pos++
			return h, nil
		}
		tbl := s.ident()
		if tbl == "" {
			return nil, joinerrors.ErrHintSyntax.GenWithStackByArgs(s.pos, fmt.Sprintf("unexpected %q", s.src[s.pos]))
		}
		h.Tables = append(h.Tables, tbl)
		s.skipSpace()
		if s.pos < len(s.src) && s.src[s.pos] == ',' {
			s.pos++
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isIdentChar accepts qualified names like db.t.
func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

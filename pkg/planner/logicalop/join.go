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

package logicalop

import (
	"fmt"
	"strings"

	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

// JoinType contains InnerJoin, LeftOuterJoin, RightOuterJoin and FullOuterJoin.
type JoinType int

const (
	// InnerJoin means inner join.
	InnerJoin JoinType = iota
	// LeftOuterJoin means left join.
	LeftOuterJoin
	// RightOuterJoin means right join.
	RightOuterJoin
	// FullOuterJoin means full outer join.
	FullOuterJoin
)

// IsOuterJoin returns if this joiner is an outer joiner.
func (tp JoinType) IsOuterJoin() bool {
	return tp != InnerJoin
}

// KeepLeftUnmatched returns whether unmatched left rows are emitted padded with NULLs.
func (tp JoinType) KeepLeftUnmatched() bool {
	return tp == LeftOuterJoin || tp == FullOuterJoin
}

// KeepRightUnmatched returns whether unmatched right rows are emitted padded with NULLs.
func (tp JoinType) KeepRightUnmatched() bool {
	return tp == RightOuterJoin || tp == FullOuterJoin
}

// String implements fmt.Stringer interface.
func (tp JoinType) String() string {
	switch tp {
	case InnerJoin:
		return "inner join"
	case LeftOuterJoin:
		return "left outer join"
	case RightOuterJoin:
		return "right outer join"
	case FullOuterJoin:
		return "full outer join"
	}
	return "unsupported join type"
}

// ParseJoinType parses names like "inner", "left", "right" and "full".
func ParseJoinType(s string) (JoinType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner":
		return InnerJoin, nil
	case "left", "left_outer":
		return LeftOuterJoin, nil
	case "right", "right_outer":
		return RightOuterJoin, nil
	case "full", "full_outer", "outer":
		return FullOuterJoin, nil
	}
	return InnerJoin, joinerrors.ErrUnsupportedJoinType.GenWithStackByArgs(s)
}

// EqualCondition is one equality key pair, the offsets of the key columns in
// the left and right schema.
type EqualCondition struct {
	LeftCol  int
	RightCol int
}

// NewEqualCondition resolves an equality key pair by column names.
func NewEqualCondition(left, right *types.Schema, leftCol, rightCol string) (EqualCondition, error) {
	l, r := left.ColumnIndex(leftCol), right.ColumnIndex(rightCol)
	if l < 0 {
		return EqualCondition{}, joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs("unknown left column " + leftCol)
	}
	if r < 0 {
		return EqualCondition{}, joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs("unknown right column " + rightCol)
	}
	return EqualCondition{LeftCol: l, RightCol: r}, nil
}

// JoinSpec describes a join of two relations.
type JoinSpec struct {
	Left  relation.Relation
	Right relation.Relation
	// EqualConditions is a conjunction of equality keys, empty means a
	// cartesian product.
	EqualConditions []EqualCondition
	JoinType        JoinType
	Hint            *strategy.Hint
}

// PredicateKind returns the kind of the join predicate.
func (s *JoinSpec) PredicateKind() strategy.PredicateKind {
	if len(s.EqualConditions) == 0 {
		return strategy.PredicateNone
	}
	return strategy.PredicateEqui
}

// LeftKeys returns the key column offsets of the left relation.
func (s *JoinSpec) LeftKeys() []int {
	keys := make([]int, 0, len(s.EqualConditions))
	for _, cond := range s.EqualConditions {
		keys = append(keys, cond.LeftCol)
	}
	return keys
}

// RightKeys returns the key column offsets of the right relation.
func (s *JoinSpec) RightKeys() []int {
	keys := make([]int, 0, len(s.EqualConditions))
	for _, cond := range s.EqualConditions {
		keys = append(keys, cond.RightCol)
	}
	return keys
}

// Schema returns the output schema: left columns followed by right columns.
func (s *JoinSpec) Schema() *types.Schema {
	return types.MergeSchema(s.Left.Schema(), s.Right.Schema(), s.JoinType.KeepRightUnmatched(), s.JoinType.KeepLeftUnmatched())
}

// Validate checks the spec is executable.
func (s *JoinSpec) Validate() error {
	if s.Left == nil || s.Right == nil {
		return joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs("missing input relation")
	}
	switch s.JoinType {
	case InnerJoin, LeftOuterJoin, RightOuterJoin, FullOuterJoin:
	default:
		return joinerrors.ErrUnsupportedJoinType.GenWithStackByArgs(s.JoinType)
	}
	if s.PredicateKind() == strategy.PredicateNone {
		if s.JoinType != InnerJoin {
			return joinerrors.ErrUnsupportedJoinType.GenWithStackByArgs(s.JoinType.String() + " without equality keys")
		}
		if s.Hint != nil && !s.Hint.Strategy.CompatibleWith(strategy.PredicateNone) {
			return joinerrors.ErrIncompatibleHint.GenWithStackByArgs(s.Hint, "a join without equality keys")
		}
		return nil
	}
	ls, rs := s.Left.Schema(), s.Right.Schema()
	for _, cond := range s.EqualConditions {
		if cond.LeftCol < 0 || cond.LeftCol >= ls.Len() || cond.RightCol < 0 || cond.RightCol >= rs.Len() {
			return joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs(fmt.Sprintf("key column offset out of range: %d = %d", cond.LeftCol, cond.RightCol))
		}
		lc, rc := ls.Columns[cond.LeftCol], rs.Columns[cond.RightCol]
		if lc.Tp != rc.Tp {
			return joinerrors.ErrInvalidJoinSpec.GenWithStackByArgs(fmt.Sprintf("key columns %s and %s have different types %s and %s", lc.Name, rc.Name, lc.Tp, rc.Tp))
		}
	}
	return nil
}

// String implements fmt.Stringer interface.
func (s *JoinSpec) String() string {
	var sb strings.Builder
	sb.WriteString(s.JoinType.String())
	sb.WriteString(" ")
	sb.WriteString(s.Left.Name())
	sb.WriteString(", ")
	sb.WriteString(s.Right.Name())
	if len(s.EqualConditions) > 0 {
		sb.WriteString(" on ")
		ls, rs := s.Left.Schema(), s.Right.Schema()
		for i, cond := range s.EqualConditions {
			if i > 0 {
				sb.WriteString(" and ")
			}
			fmt.Fprintf(&sb, "%s.%s = %s.%s", s.Left.Name(), ls.Columns[cond.LeftCol].Name, s.Right.Name(), rs.Columns[cond.RightCol].Name)
		}
	}
	if s.Hint != nil {
		sb.WriteString(" hint ")
		sb.WriteString(s.Hint.String())
	}
	return sb.String()
}

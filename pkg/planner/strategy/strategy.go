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
)

// Strategy is the tag of a physical join strategy.
type Strategy string

// Physical join strategies.
const (
	// ShuffleReplicateNL replicates partitions of both sides over a worker grid
	// and evaluates every pair of rows.
	ShuffleReplicateNL Strategy = "shuffle_replicate_nl"
	// ShuffleMerge shuffles both sides by key, sorts each partition and merges.
	ShuffleMerge Strategy = "shuffle_merge"
	// ShuffleHash shuffles both sides by key and hash joins each partition.
	ShuffleHash Strategy = "shuffle_hash"
	// Broadcast builds one hash table over the small side and shares it with
	// all workers.
	Broadcast Strategy = "broadcast"
)

// AllStrategies lists the strategies in hint priority order.
var AllStrategies = []Strategy{Broadcast, ShuffleMerge, ShuffleHash, ShuffleReplicateNL}

// RequiresKeys returns whether the strategy needs equality keys.
func (s Strategy) RequiresKeys() bool {
	return s == ShuffleMerge || s == ShuffleHash
}

// CompatibleWith returns whether the strategy can run a join of kind.
func (s Strategy) CompatibleWith(kind PredicateKind) bool {
	return kind == PredicateEqui || !s.RequiresKeys()
}

// priority is the hint priority, higher wins.
func (s Strategy) priority() int {
	switch s {
	case Broadcast:
		return 4
	case ShuffleMerge:
		return 3
	case ShuffleHash:
		return 2
	case ShuffleReplicateNL:
		return 1
	}
	return 0
}

// PredicateKind is the shape of the join predicate.
type PredicateKind int

const (
	// PredicateNone means no equality keys, the join is a cartesian product.
	PredicateNone PredicateKind = iota
	// PredicateEqui means a conjunction of one or more equality keys.
	PredicateEqui
)

// String implements fmt.Stringer interface.
func (k PredicateKind) String() string {
	if k == PredicateEqui {
		return "equi"
	}
	return "none"
}

// Reason tells which rule picked the strategy.
type Reason string

// Decision reasons.
const (
	ReasonHintForced      Reason = "hint_forced"
	ReasonSizeThreshold   Reason = "size_threshold"
	ReasonFallbackDefault Reason = "fallback_default"
)

// BuildSide is the side a hash table is built on, or the side broadcast.
type BuildSide int

const (
	// BuildRight builds on or broadcasts the right relation.
	BuildRight BuildSide = iota
	// BuildLeft builds on or broadcasts the left relation.
	BuildLeft
)

// String implements fmt.Stringer interface.
func (s BuildSide) String() string {
	if s == BuildLeft {
		return "left"
	}
	return "right"
}

// Other returns the opposite side.
func (s BuildSide) Other() BuildSide {
	if s == BuildLeft {
		return BuildRight
	}
	return BuildLeft
}

// Decision is the output of Select.
type Decision struct {
	Strategy Strategy
	Reason   Reason
	// BuildSide is meaningful for Broadcast and ShuffleHash.
	BuildSide BuildSide
	// NestedLoop is set when Broadcast runs without equality keys.
	NestedLoop  bool
	Explanation string
}

// String implements fmt.Stringer interface.
func (d Decision) String() string {
	name := string(d.Strategy)
	if d.NestedLoop {
		name += "(nested_loop)"
	}
	switch d.Strategy {
	case Broadcast, ShuffleHash:
		name += ", build " + d.BuildSide.String()
	}
	return fmt.Sprintf("%s [%s]: %s", name, d.Reason, d.Explanation)
}

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

	"github.com/docker/go-units"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/statistics"
)

// Select picks the physical join strategy. It is pure: identical inputs
// always give identical decisions. A nil stats means the statistics of that
// side are unavailable. Rules, first match wins:
//
//  1. Without equality keys: broadcast nested loop if a broadcast hint is given
//     and a side fits the broadcast threshold, otherwise shuffle replicate
//     nested loop.
//  2. A hint compatible with the predicate kind.
//  3. A side fits the broadcast threshold: broadcast hash join of the smaller side.
//  4. Sort merge is not preferred and the smaller side is ShuffleHashSizeRatio
//     times smaller and its partitions fit the partition memory budget:
//     shuffle hash join built on the smaller side.
//  5. Shuffle sort merge join.
func Select(left, right *statistics.Stats, kind PredicateKind, hint *Hint, cfg *config.Join) Decision {
	threshold := int64(cfg.BroadcastThreshold)
	if kind == PredicateNone {
		if hint != nil && hint.Strategy == Broadcast {
			if side, ok := broadcastSide(left, right, threshold, hint.Side); ok {
				return Decision{
					Strategy:    Broadcast,
					Reason:      ReasonHintForced,
					BuildSide:   side,
					NestedLoop:  true,
					Explanation: fmt.Sprintf("hint %s without equality keys, %s side fits broadcast threshold %s", hint, side, sizeString(threshold)),
				}
			}
		}
		if hint != nil && hint.Strategy == ShuffleReplicateNL {
			return Decision{
				Strategy:    ShuffleReplicateNL,
				Reason:      ReasonHintForced,
				Explanation: fmt.Sprintf("hint %s without equality keys", hint),
			}
		}
		return Decision{
			Strategy:    ShuffleReplicateNL,
			Reason:      ReasonFallbackDefault,
			Explanation: "no equality keys",
		}
	}

	if hint != nil && hint.Strategy.CompatibleWith(kind) {
		d := Decision{
			Strategy:    hint.Strategy,
			Reason:      ReasonHintForced,
			Explanation: fmt.Sprintf("forced by hint %s", hint),
		}
		if hint.Strategy == Broadcast || hint.Strategy == ShuffleHash {
			d.BuildSide = hintedBuildSide(left, right, hint.Side)
		}
		return d
	}

	if left == nil || right == nil {
		return Decision{
			Strategy:    ShuffleMerge,
			Reason:      ReasonFallbackDefault,
			Explanation: "statistics unavailable, use the safe default",
		}
	}

	if side, ok := broadcastSide(left, right, threshold, HintSideAny); ok {
		return Decision{
			Strategy:    Broadcast,
			Reason:      ReasonSizeThreshold,
			BuildSide:   side,
			Explanation: fmt.Sprintf("%s side (%s) fits broadcast threshold %s", side, pick(left, right, side), sizeString(threshold)),
		}
	}

	if !cfg.PreferSortMergeJoin {
		side := smallerSide(left, right)
		small, large := pick(left, right, side), pick(left, right, side.Other())
		perPartition := small.ByteSize / int64(max(cfg.ShufflePartitions, 1))
		budget := int64(cfg.PartitionMemoryBudget)
		if float64(small.ByteSize)*cfg.ShuffleHashSizeRatio <= float64(large.ByteSize) &&
			(budget <= 0 || perPartition <= budget) {
			return Decision{
				Strategy:  ShuffleHash,
				Reason:    ReasonSizeThreshold,
				BuildSide: side,
				Explanation: fmt.Sprintf("%s side is %gx smaller and its partitions (%s) fit the partition memory budget %s",
					side, cfg.ShuffleHashSizeRatio, sizeString(perPartition), sizeString(budget)),
			}
		}
	}

	return Decision{
		Strategy:    ShuffleMerge,
		Reason:      ReasonFallbackDefault,
		Explanation: "no side fits broadcast or shuffle hash",
	}
}

func canBroadcast(s *statistics.Stats, threshold int64) bool {
	return s != nil && (s.IsEmpty() || s.ByteSize <= threshold)
}

// broadcastSide returns the side to broadcast if any side qualifies. The
// preferred side wins if it qualifies, then the smaller one.
func broadcastSide(left, right *statistics.Stats, threshold int64, prefer HintSide) (BuildSide, bool) {
	l, r := canBroadcast(left, threshold), canBroadcast(right, threshold)
	switch {
	case prefer == HintSideLeft && l:
		return BuildLeft, true
	case prefer == HintSideRight && r:
		return BuildRight, true
	case l && r:
		return smallerSide(left, right), true
	case l:
		return BuildLeft, true
	case r:
		return BuildRight, true
	}
	return BuildRight, false
}

func hintedBuildSide(left, right *statistics.Stats, prefer HintSide) BuildSide {
	switch prefer {
	case HintSideLeft:
		return BuildLeft
	case HintSideRight:
		return BuildRight
	}
	if left == nil || right == nil {
		return BuildRight
	}
	return smallerSide(left, right)
}

// smallerSide returns the side with the smaller byte size, right on ties.
func smallerSide(left, right *statistics.Stats) BuildSide {
	if left.ByteSize < right.ByteSize {
		return BuildLeft
	}
	return BuildRight
}

func pick(left, right *statistics.Stats, side BuildSide) *statistics.Stats {
	if side == BuildLeft {
		return left
	}
	return right
}

func sizeString(size int64) string {
	if size < 0 {
		return "disabled"
	}
	return units.BytesSize(float64(size))
}

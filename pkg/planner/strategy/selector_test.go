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
	"testing"

	"github.com/docker/go-units"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/statistics"
	"github.com/stretchr/testify/require"
)

func stats(rows, bytes int64) *statistics.Stats {
	return statistics.NewStats(rows, bytes, nil, statistics.SourceManual)
}

func defaultJoinConfig() *config.Join {
	return &config.NewConfig().Join
}

func TestSelect(t *testing.T) {
	small := stats(3, 3*48)
	mid := stats(1e6, 64*units.MiB)
	large := stats(1e8, 8*units.GiB)
	empty := stats(0, 0)

	noSMJ := defaultJoinConfig()
	noSMJ.PreferSortMergeJoin = false
	noSMJ.PartitionMemoryBudget = 16 * units.MiB

	noBroadcast := defaultJoinConfig()
	noBroadcast.BroadcastThreshold = -1

	tests := []struct {
		name        string
		left, right *statistics.Stats
		kind        PredicateKind
		hint        *Hint
		cfg         *config.Join
		strategy    Strategy
		reason      Reason
		side        BuildSide
		nestedLoop  bool
	}{
		{"both small equi", small, small, PredicateEqui, nil, nil, Broadcast, ReasonSizeThreshold, BuildRight, false},
		{"small left", small, large, PredicateEqui, nil, nil, Broadcast, ReasonSizeThreshold, BuildLeft, false},
		{"small right", large, small, PredicateEqui, nil, nil, Broadcast, ReasonSizeThreshold, BuildRight, false},
		{"empty side always broadcast", empty, large, PredicateEqui, nil, noBroadcast, Broadcast, ReasonSizeThreshold, BuildLeft, false},
		{"broadcast disabled", small, large, PredicateEqui, nil, noBroadcast, ShuffleMerge, ReasonFallbackDefault, BuildRight, false},
		{"prefer sort merge", mid, large, PredicateEqui, nil, nil, ShuffleMerge, ReasonFallbackDefault, BuildRight, false},
		{"shuffle hash", large, mid, PredicateEqui, nil, noSMJ, ShuffleHash, ReasonSizeThreshold, BuildRight, false},
		{"shuffle hash ratio not met", mid, stats(2e6, 100*units.MiB), PredicateEqui, nil, noSMJ, ShuffleMerge, ReasonFallbackDefault, BuildRight, false},
		{"shuffle hash partition too large", stats(1e9, 4*units.GiB), stats(1e10, 40*units.GiB), PredicateEqui, nil, noSMJ, ShuffleMerge, ReasonFallbackDefault, BuildRight, false},
		{"hint overrides cost", small, small, PredicateEqui, NewHint(ShuffleMerge), nil, ShuffleMerge, ReasonHintForced, BuildRight, false},
		{"hint shuffle hash", large, mid, PredicateEqui, NewHint(ShuffleHash), nil, ShuffleHash, ReasonHintForced, BuildRight, false},
		{"hint side", large, mid, PredicateEqui, &Hint{Strategy: Broadcast, Side: HintSideLeft}, nil, Broadcast, ReasonHintForced, BuildLeft, false},
		{"hint replicate with keys", small, small, PredicateEqui, NewHint(ShuffleReplicateNL), nil, ShuffleReplicateNL, ReasonHintForced, BuildRight, false},
		{"missing stats", nil, small, PredicateEqui, nil, nil, ShuffleMerge, ReasonFallbackDefault, BuildRight, false},
		{"missing stats with hint", nil, nil, PredicateEqui, NewHint(ShuffleHash), nil, ShuffleHash, ReasonHintForced, BuildRight, false},
		{"keyless", small, small, PredicateNone, nil, nil, ShuffleReplicateNL, ReasonFallbackDefault, BuildRight, false},
		{"keyless replicate hint", small, small, PredicateNone, NewHint(ShuffleReplicateNL), nil, ShuffleReplicateNL, ReasonHintForced, BuildRight, false},
		{"keyless broadcast hint", large, small, PredicateNone, NewHint(Broadcast), nil, Broadcast, ReasonHintForced, BuildRight, true},
		{"keyless broadcast hint too large", large, large, PredicateNone, NewHint(Broadcast), nil, ShuffleReplicateNL, ReasonFallbackDefault, BuildRight, false},
		{"keyless broadcast hint missing stats", nil, nil, PredicateNone, NewHint(Broadcast), nil, ShuffleReplicateNL, ReasonFallbackDefault, BuildRight, false},
		{"keyless broadcast prefers hinted side", small, empty, PredicateNone, &Hint{Strategy: Broadcast, Side: HintSideLeft}, nil, Broadcast, ReasonHintForced, BuildLeft, true},
		{"keyless incompatible hint", small, small, PredicateNone, NewHint(ShuffleMerge), nil, ShuffleReplicateNL, ReasonFallbackDefault, BuildRight, false},
	}
	for _, tt := range tests {
		cfg := tt.cfg
		if cfg == nil {
			cfg = defaultJoinConfig()
		}
		d := Select(tt.left, tt.right, tt.kind, tt.hint, cfg)
		require.Equal(t, tt.strategy, d.Strategy, tt.name)
		require.Equal(t, tt.reason, d.Reason, tt.name)
		require.Equal(t, tt.side, d.BuildSide, tt.name)
		require.Equal(t, tt.nestedLoop, d.NestedLoop, tt.name)
		require.NotEmpty(t, d.Explanation, tt.name)
	}
}

func TestSelectDeterministic(t *testing.T) {
	cfg := defaultJoinConfig()
	cfg.PreferSortMergeJoin = false
	left, right := stats(1e7, 900*units.MiB), stats(1e5, 20*units.MiB)
	first := Select(left, right, PredicateEqui, nil, cfg)
	for range 100 {
		require.Equal(t, first, Select(left, right, PredicateEqui, nil, cfg))
	}
	require.Equal(t, ShuffleHash, first.Strategy)
}

func TestHintAlwaysOverridesCost(t *testing.T) {
	sizes := []*statistics.Stats{nil, stats(0, 0), stats(3, 100), stats(1e9, 100*units.GiB)}
	for _, s := range AllStrategies {
		for _, l := range sizes {
			for _, r := range sizes {
				d := Select(l, r, PredicateEqui, NewHint(s), defaultJoinConfig())
				require.Equal(t, s, d.Strategy)
				require.Equal(t, ReasonHintForced, d.Reason)
			}
		}
	}
}

func TestDecisionString(t *testing.T) {
	d := Select(stats(3, 144), stats(3, 144), PredicateEqui, nil, defaultJoinConfig())
	require.Equal(t, "broadcast, build right [size_threshold]: right side (rows=3 size=144B source=manual) fits broadcast threshold 10MiB", d.String())
}

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

package executor

import (
	"context"
	"slices"
	"testing"

	"github.com/docker/go-units"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/statistics"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/stretchr/testify/require"
)

func intTable(name string, values ...int64) *relation.MemTable {
	rows := make([]chunk.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, chunk.Row{v})
	}
	schema := types.NewSchema(&types.Column{Name: "id", Tp: types.ETInt})
	return relation.NewMemTable(name, schema, rows)
}

func opaque(rel *relation.MemTable) relation.Relation {
	return relation.NewStream(rel.Name(), rel.Schema(), rel.Open)
}

func equiSpec(left, right relation.Relation) *logicalop.JoinSpec {
	return &logicalop.JoinSpec{
		Left:            left,
		Right:           right,
		EqualConditions: []logicalop.EqualCondition{{LeftCol: 0, RightCol: 0}},
		JoinType:        logicalop.InnerJoin,
	}
}

func drain(t *testing.T, rs *ResultSet) [][2]int64 {
	var out [][2]int64
	chk := rs.NewChunk(2)
	for {
		require.NoError(t, rs.Next(context.Background(), chk))
		if chk.NumRows() == 0 {
			break
		}
		for _, row := range chk.Rows() {
			out = append(out, [2]int64{row[0].(int64), row[1].(int64)})
		}
	}
	slices.SortFunc(out, func(a, b [2]int64) int {
		if a[0] != b[0] {
			return int(a[0] - b[0])
		}
		return int(a[1] - b[1])
	})
	return out
}

func defaultJoinConfig() *config.Join {
	return &config.NewConfig().Join
}

func TestRunBroadcast(t *testing.T) {
	d := NewDriver(statistics.IntrospectProvider{})
	spec := equiSpec(intTable("l", 1, 2, 3), intTable("r", 2, 3, 4))
	res, err := d.Run(context.Background(), spec, defaultJoinConfig())
	require.NoError(t, err)
	require.Equal(t, strategy.Broadcast, res.Strategy())
	require.Equal(t, strategy.ReasonSizeThreshold, res.Decision.Reason)
	require.NotEmpty(t, res.JoinID)
	require.Equal(t, int64(3), res.LeftStats.RowCount)

	require.Equal(t, [][2]int64{{2, 2}, {3, 3}}, drain(t, res.ResultSet))
	require.Equal(t, int64(2), res.RowsProduced())
	require.True(t, res.ResultSet.Finished())
	elapsed := res.Elapsed()
	require.Positive(t, elapsed)
	require.Equal(t, elapsed, res.Elapsed())
	require.NoError(t, res.ResultSet.Close())
}

func TestRunCartesianWithHint(t *testing.T) {
	hint, warnings, err := strategy.ParseHints("/*+ SHUFFLE_REPLICATE_NL(l, r) */")
	require.NoError(t, err)
	require.Empty(t, warnings)
	spec := &logicalop.JoinSpec{
		Left:     intTable("l", 1, 2, 3),
		Right:    intTable("r", 4, 5, 6),
		JoinType: logicalop.InnerJoin,
		Hint:     hint,
	}
	res, err := NewDriver(statistics.IntrospectProvider{}).Run(context.Background(), spec, defaultJoinConfig())
	require.NoError(t, err)
	require.Equal(t, strategy.ShuffleReplicateNL, res.Strategy())
	require.Equal(t, strategy.ReasonHintForced, res.Decision.Reason)
	out := drain(t, res.ResultSet)
	require.Len(t, out, 9)
	require.Equal(t, [2]int64{1, 4}, out[0])
	require.Equal(t, [2]int64{3, 6}, out[8])
}

func TestRunPreferSortMerge(t *testing.T) {
	left := intTable("big", 1, 1, 1, 1, 1, 1, 2)
	right := intTable("small", 1, 2)
	provider := statistics.StaticProvider{
		"big":   statistics.NewStats(1e8, 8*units.GiB, nil, statistics.SourceManual),
		"small": statistics.NewStats(1e6, 64*units.MiB, nil, statistics.SourceManual),
	}
	cfg := defaultJoinConfig()
	cfg.PartitionMemoryBudget = units.GiB
	d := NewDriver(provider)

	res, err := d.Run(context.Background(), equiSpec(left, right), cfg)
	require.NoError(t, err)
	require.Equal(t, strategy.ShuffleMerge, res.Strategy())
	require.Len(t, drain(t, res.ResultSet), 7)

	cfg.PreferSortMergeJoin = false
	res, err = d.Run(context.Background(), equiSpec(left, right), cfg)
	require.NoError(t, err)
	require.Equal(t, strategy.ShuffleHash, res.Strategy())
	require.Len(t, drain(t, res.ResultSet), 7)
}

func TestRunStatsUnavailable(t *testing.T) {
	ctx := context.Background()
	d := NewDriver(statistics.IntrospectProvider{})
	left, right := opaque(intTable("l", 1, 2)), opaque(intTable("r", 2))

	_, err := d.Run(ctx, equiSpec(left, right), defaultJoinConfig())
	require.True(t, joinerrors.ErrStatsUnavailable.Equal(err), "%v", err)

	spec := equiSpec(left, right)
	spec.Hint = strategy.NewHint(strategy.ShuffleHash)
	res, err := d.Run(ctx, spec, defaultJoinConfig())
	require.NoError(t, err)
	require.Equal(t, strategy.ShuffleHash, res.Strategy())
	require.Nil(t, res.LeftStats)
	require.Len(t, res.Warnings, 2)
	require.Equal(t, [][2]int64{{2, 2}}, drain(t, res.ResultSet))

	cfg := defaultJoinConfig()
	cfg.StatsUnavailableFallback = true
	res, err = d.Run(ctx, equiSpec(left, right), cfg)
	require.NoError(t, err)
	require.Equal(t, strategy.ShuffleMerge, res.Strategy())
	require.Equal(t, strategy.ReasonFallbackDefault, res.Decision.Reason)
	require.Equal(t, [][2]int64{{2, 2}}, drain(t, res.ResultSet))
}

func TestRunInapplicableHint(t *testing.T) {
	spec := equiSpec(intTable("l", 1), intTable("r", 1))
	spec.Hint = strategy.NewHint(strategy.ShuffleMerge, "t3")
	res, err := NewDriver(statistics.IntrospectProvider{}).Run(context.Background(), spec, defaultJoinConfig())
	require.NoError(t, err)
	require.Equal(t, strategy.Broadcast, res.Strategy())
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "inapplicable")
	require.NoError(t, res.ResultSet.Close())
}

func TestRunInvalid(t *testing.T) {
	d := NewDriver(statistics.IntrospectProvider{})
	spec := &logicalop.JoinSpec{
		Left:     intTable("l", 1),
		Right:    intTable("r", 1),
		JoinType: logicalop.LeftOuterJoin,
	}
	_, err := d.Run(context.Background(), spec, defaultJoinConfig())
	require.True(t, joinerrors.ErrUnsupportedJoinType.Equal(err), "%v", err)

	spec.JoinType = logicalop.InnerJoin
	spec.Hint = strategy.NewHint(strategy.ShuffleHash)
	_, err = d.Run(context.Background(), spec, defaultJoinConfig())
	require.True(t, joinerrors.ErrIncompatibleHint.Equal(err), "%v", err)
}

func TestResultSetCloseEarly(t *testing.T) {
	left := relation.NewSynthetic("l", types.NewSchema(&types.Column{Name: "id", Tp: types.ETInt}), 50000, relation.ModGen(100))
	right := relation.NewSynthetic("r", types.NewSchema(&types.Column{Name: "id", Tp: types.ETInt}), 50000, relation.ModGen(100))
	spec := equiSpec(left, right)
	spec.Hint = strategy.NewHint(strategy.ShuffleHash)
	res, err := NewDriver(statistics.IntrospectProvider{}).Run(context.Background(), spec, defaultJoinConfig())
	require.NoError(t, err)
	chk := res.ResultSet.NewChunk(16)
	require.NoError(t, res.ResultSet.Next(context.Background(), chk))
	n := chk.NumRows()
	require.Positive(t, n)
	require.NoError(t, res.ResultSet.Close())
	require.NoError(t, res.ResultSet.Close())
	require.True(t, res.ResultSet.Finished())
	require.Equal(t, int64(n), res.RowsProduced())

	require.NoError(t, res.ResultSet.Next(context.Background(), chk))
	require.Equal(t, 0, chk.NumRows())
}

func TestAggregate(t *testing.T) {
	schema := types.NewSchema(
		&types.Column{Name: "id", Tp: types.ETInt},
		&types.Column{Name: "score", Tp: types.ETReal},
		&types.Column{Name: "name", Tp: types.ETString},
	)
	left := relation.NewMemTable("l", schema, []chunk.Row{
		{int64(1), 1.5, "a"},
		{int64(2), nil, "b"},
		{int64(3), 2.5, "c"},
		{nil, 4.0, "d"},
	})
	right := intTable("r", 1, 2, 3, 3)
	run := func() *ResultSet {
		res, err := NewDriver(statistics.IntrospectProvider{}).Run(context.Background(), equiSpec(left, right), defaultJoinConfig())
		require.NoError(t, err)
		return res.ResultSet
	}

	agg, err := Aggregate(context.Background(), run(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(4), agg.Count)
	require.Equal(t, int64(4), agg.CountCol)
	require.Equal(t, int64(9), agg.Sum)

	agg, err = Aggregate(context.Background(), run(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), agg.Count)
	require.Equal(t, int64(3), agg.CountCol)
	require.InDelta(t, 6.5, agg.Sum, 1e-9)

	agg, err = Aggregate(context.Background(), run(), -1)
	require.NoError(t, err)
	require.Equal(t, int64(4), agg.Count)
	require.Nil(t, agg.Sum)

	rs := run()
	_, err = Aggregate(context.Background(), rs, 2)
	require.True(t, joinerrors.ErrInvalidJoinSpec.Equal(err), "%v", err)
	require.True(t, rs.Finished())
}

func TestDriverMemoryTracker(t *testing.T) {
	ctx := context.Background()
	d := NewDriver(statistics.IntrospectProvider{}, WithMemoryLimit(1))
	spec := equiSpec(intTable("l", 1, 2, 3), intTable("r", 2, 3, 4))
	res, err := d.Run(ctx, spec, defaultJoinConfig())
	require.NoError(t, err)
	// exceeding the driver limit only logs.
	require.Equal(t, [][2]int64{{2, 2}, {3, 3}}, drain(t, res.ResultSet))
	require.Positive(t, d.MemTracker().MaxConsumed())
	require.NoError(t, res.ResultSet.Close())
	require.Zero(t, d.MemTracker().BytesConsumed())

	// the quota of one join still fails it.
	cfg := defaultJoinConfig()
	cfg.MemQuota = 1
	res, err = d.Run(ctx, spec, cfg)
	require.NoError(t, err)
	_, err = Aggregate(ctx, res.ResultSet, 0)
	require.True(t, joinerrors.ErrOutOfMemory.Equal(err), "%v", err)
	require.Zero(t, d.MemTracker().BytesConsumed())
}

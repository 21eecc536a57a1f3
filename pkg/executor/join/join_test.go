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

package join

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/codec"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/pingcap/joinstrategy/pkg/util/memory"
	"github.com/stretchr/testify/require"
)

var allJoinTypes = []logicalop.JoinType{
	logicalop.InnerJoin, logicalop.LeftOuterJoin, logicalop.RightOuterJoin, logicalop.FullOuterJoin,
}

func keyValueSchema(prefix string) *types.Schema {
	return types.NewSchema(
		&types.Column{Name: prefix + "_key", Tp: types.ETInt},
		&types.Column{Name: prefix + "_val", Tp: types.ETString},
	)
}

// genTable generates rows with duplicate and NULL keys in [0, keyRange).
func genTable(name string, rng *rand.Rand, n int, keyRange int64) *relation.MemTable {
	rows := make([]chunk.Row, 0, n)
	for i := range n {
		var key any
		if rng.IntN(10) > 0 {
			key = rng.Int64N(keyRange)
		}
		rows = append(rows, chunk.Row{key, fmt.Sprintf("%s-%d", name, i)})
	}
	return relation.NewMemTable(name, keyValueSchema(name), rows)
}

func intTable(name string, values ...int64) *relation.MemTable {
	rows := make([]chunk.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, chunk.Row{v})
	}
	return relation.NewMemTable(name, types.NewSchema(&types.Column{Name: "v", Tp: types.ETInt}), rows)
}

func equiSpec(left, right relation.Relation, tp logicalop.JoinType) *logicalop.JoinSpec {
	return &logicalop.JoinSpec{
		Left:            left,
		Right:           right,
		EqualConditions: []logicalop.EqualCondition{{LeftCol: 0, RightCol: 0}},
		JoinType:        tp,
	}
}

// referenceJoin is a naive nested loop join.
func referenceJoin(t *testing.T, spec *logicalop.JoinSpec) []string {
	ctx := context.Background()
	lefts, err := relation.Materialize(ctx, spec.Left, 0)
	require.NoError(t, err)
	rights, err := relation.Materialize(ctx, spec.Right, 0)
	require.NoError(t, err)
	lw, rw := spec.Left.Schema().Len(), spec.Right.Schema().Len()
	match := func(l, r chunk.Row) bool {
		for _, cond := range spec.EqualConditions {
			if l[cond.LeftCol] == nil || r[cond.RightCol] == nil || types.Compare(l[cond.LeftCol], r[cond.RightCol]) != 0 {
				return false
			}
		}
		return true
	}
	var out []chunk.Row
	rightMatched := make([]bool, len(rights))
	for _, l := range lefts {
		matched := false
		for j, r := range rights {
			if match(l, r) {
				matched, rightMatched[j] = true, true
				out = append(out, append(slices.Clone(l), r...))
			}
		}
		if !matched && spec.JoinType.KeepLeftUnmatched() {
			out = append(out, append(slices.Clone(l), make(chunk.Row, rw)...))
		}
	}
	if spec.JoinType.KeepRightUnmatched() {
		for j, r := range rights {
			if !rightMatched[j] {
				out = append(out, append(make(chunk.Row, lw), r...))
			}
		}
	}
	return canonical(out)
}

func canonical(rows []chunk.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, fmt.Sprint(row))
	}
	slices.Sort(out)
	return out
}

func drain(ctx context.Context, t *testing.T, exec Executor, chunkSize int) ([]chunk.Row, error) {
	require.NoError(t, exec.Open(ctx))
	defer func() {
		require.NoError(t, exec.Close())
	}()
	var rows []chunk.Row
	chk := chunk.New(chunkSize)
	for {
		if err := exec.Next(ctx, chk); err != nil {
			return nil, err
		}
		if chk.NumRows() == 0 {
			return rows, nil
		}
		require.LessOrEqual(t, chk.NumRows(), chunkSize)
		rows = append(rows, chk.Rows()...)
	}
}

type decisionCase struct {
	name     string
	decision strategy.Decision
}

func allDecisions(kind strategy.PredicateKind) []decisionCase {
	cases := []decisionCase{
		{"replicate_nl", strategy.Decision{Strategy: strategy.ShuffleReplicateNL}},
		{"broadcast_right", strategy.Decision{Strategy: strategy.Broadcast, BuildSide: strategy.BuildRight}},
		{"broadcast_left", strategy.Decision{Strategy: strategy.Broadcast, BuildSide: strategy.BuildLeft}},
	}
	if kind == strategy.PredicateEqui {
		cases = append(cases,
			decisionCase{"merge", strategy.Decision{Strategy: strategy.ShuffleMerge}},
			decisionCase{"hash_right", strategy.Decision{Strategy: strategy.ShuffleHash, BuildSide: strategy.BuildRight}},
			decisionCase{"hash_left", strategy.Decision{Strategy: strategy.ShuffleHash, BuildSide: strategy.BuildLeft}},
		)
	}
	return cases
}

func TestCrossStrategyEquivalence(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	left := genTable("l", rng, 300, 40)
	right := genTable("r", rng, 200, 50)
	optsList := []Options{
		{WorkerCount: 1, ShufflePartitions: 1, ChunkSize: 1},
		{WorkerCount: 3, ShufflePartitions: 5, ChunkSize: 7},
		{WorkerCount: 4, ShufflePartitions: 16, ChunkSize: 1024},
	}
	for _, tp := range allJoinTypes {
		spec := equiSpec(left, right, tp)
		require.NoError(t, spec.Validate())
		expected := referenceJoin(t, spec)
		for _, dc := range allDecisions(strategy.PredicateEqui) {
			for _, opts := range optsList {
				exec, err := Build(dc.decision, spec, opts)
				require.NoError(t, err)
				rows, err := drain(ctx, t, exec, 64)
				require.NoError(t, err)
				require.Equal(t, expected, canonical(rows), "%s %s %+v", tp, dc.name, opts)
			}
		}
	}
}

func TestMultiColumnKeys(t *testing.T) {
	ctx := context.Background()
	schema := types.NewSchema(
		&types.Column{Name: "a", Tp: types.ETInt},
		&types.Column{Name: "b", Tp: types.ETString},
		&types.Column{Name: "c", Tp: types.ETReal},
	)
	left := relation.NewMemTable("l", schema, []chunk.Row{
		{int64(1), "x", 1.0}, {int64(1), "y", 2.0}, {int64(2), "x", 3.0}, {int64(1), "x", 4.0}, {nil, "x", 5.0},
	})
	right := relation.NewMemTable("r", schema, []chunk.Row{
		{int64(1), "x", 10.0}, {int64(2), "y", 20.0}, {int64(1), nil, 30.0}, {int64(2), "x", 40.0},
	})
	for _, tp := range allJoinTypes {
		spec := &logicalop.JoinSpec{
			Left:            left,
			Right:           right,
			EqualConditions: []logicalop.EqualCondition{{LeftCol: 0, RightCol: 0}, {LeftCol: 1, RightCol: 1}},
			JoinType:        tp,
		}
		expected := referenceJoin(t, spec)
		for _, dc := range allDecisions(strategy.PredicateEqui) {
			exec, err := Build(dc.decision, spec, Options{WorkerCount: 2, ShufflePartitions: 3, ChunkSize: 2})
			require.NoError(t, err)
			rows, err := drain(ctx, t, exec, 3)
			require.NoError(t, err)
			require.Equal(t, expected, canonical(rows), "%s %s", tp, dc.name)
		}
	}
}

func TestBroadcastScenario(t *testing.T) {
	spec := equiSpec(intTable("l", 1, 2, 3), intTable("r", 2, 3, 4), logicalop.InnerJoin)
	exec, err := Build(strategy.Decision{Strategy: strategy.Broadcast}, spec, Options{WorkerCount: 4})
	require.NoError(t, err)
	rows, err := drain(context.Background(), t, exec, 16)
	require.NoError(t, err)
	require.Equal(t, []string{"[2 2]", "[3 3]"}, canonical(rows))
	require.Equal(t, "[v Int, v Int]", exec.Schema().String())
}

func TestCartesianProduct(t *testing.T) {
	spec := &logicalop.JoinSpec{Left: intTable("l", 1, 2, 3), Right: intTable("r", 10, 20, 30)}
	require.Equal(t, strategy.PredicateNone, spec.PredicateKind())
	var expected []string
	for _, l := range []int64{1, 2, 3} {
		for _, r := range []int64{10, 20, 30} {
			expected = append(expected, fmt.Sprint(chunk.Row{l, r}))
		}
	}
	slices.Sort(expected)
	for _, dc := range allDecisions(strategy.PredicateNone) {
		exec, err := Build(dc.decision, spec, Options{WorkerCount: 2, ChunkSize: 2})
		require.NoError(t, err)
		rows, err := drain(context.Background(), t, exec, 4)
		require.NoError(t, err)
		require.Len(t, rows, 9, dc.name)
		require.Equal(t, expected, canonical(rows), dc.name)
	}

	_, err := Build(strategy.Decision{Strategy: strategy.ShuffleMerge}, spec, Options{})
	require.True(t, joinerrors.ErrUnsupportedJoinType.Equal(err))
	_, err = Build(strategy.Decision{Strategy: "nope"}, equiSpec(intTable("l"), intTable("r"), logicalop.InnerJoin), Options{})
	require.True(t, joinerrors.ErrUnsupportedJoinType.Equal(err))
}

func TestEmptySide(t *testing.T) {
	ctx := context.Background()
	full, empty := intTable("full", 1, 2, 2), intTable("empty")
	for _, dc := range allDecisions(strategy.PredicateEqui) {
		for _, spec := range []*logicalop.JoinSpec{
			equiSpec(full, empty, logicalop.InnerJoin),
			equiSpec(empty, full, logicalop.InnerJoin),
			equiSpec(empty, empty, logicalop.FullOuterJoin),
		} {
			exec, err := Build(dc.decision, spec, Options{WorkerCount: 3, ShufflePartitions: 4})
			require.NoError(t, err)
			rows, err := drain(ctx, t, exec, 8)
			require.NoError(t, err)
			require.Empty(t, rows, dc.name)
		}
		exec, err := Build(dc.decision, equiSpec(full, empty, logicalop.LeftOuterJoin), Options{WorkerCount: 3, ShufflePartitions: 4})
		require.NoError(t, err)
		rows, err := drain(ctx, t, exec, 8)
		require.NoError(t, err)
		require.Equal(t, []string{"[1 <nil>]", "[2 <nil>]", "[2 <nil>]"}, canonical(rows), dc.name)
	}
}

func TestPartitionMemoryBudget(t *testing.T) {
	// all rows share one key, so one partition holds the whole build side.
	rng := rand.New(rand.NewPCG(3, 4))
	skewed := genTable("s", rng, 500, 1)
	small := genTable("t", rng, 10, 1)
	spec := equiSpec(small, skewed, logicalop.InnerJoin)
	opts := Options{WorkerCount: 2, ShufflePartitions: 8, PartitionMemoryBudget: 1024}
	exec, err := Build(strategy.Decision{Strategy: strategy.ShuffleHash, BuildSide: strategy.BuildRight}, spec, opts)
	require.NoError(t, err)
	_, err = drain(context.Background(), t, exec, 8)
	require.True(t, joinerrors.ErrOutOfMemory.Equal(err), "%v", err)
	require.ErrorContains(t, err, "shuffle_hash partition")

	// the small side fits.
	exec, err = Build(strategy.Decision{Strategy: strategy.ShuffleHash, BuildSide: strategy.BuildLeft}, spec, Options{WorkerCount: 2, ShufflePartitions: 8, PartitionMemoryBudget: 64 << 10})
	require.NoError(t, err)
	rows, err := drain(context.Background(), t, exec, 8)
	require.NoError(t, err)
	require.Equal(t, referenceJoin(t, spec), canonical(rows))
}

func TestMemQuota(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	spec := equiSpec(genTable("l", rng, 1000, 10), genTable("r", rng, 1000, 10), logicalop.InnerJoin)
	parent := memory.NewTracker("driver", -1)
	for _, dc := range allDecisions(strategy.PredicateEqui) {
		exec, err := Build(dc.decision, spec, Options{WorkerCount: 2, ShufflePartitions: 4, MemQuota: 4096, ParentTracker: parent})
		require.NoError(t, err)
		_, err = drain(context.Background(), t, exec, 8)
		require.True(t, joinerrors.ErrOutOfMemory.Equal(err), "%s: %v", dc.name, err)
		require.Greater(t, exec.MemTracker().MaxConsumed(), int64(4096))
	}
	// everything is released on close.
	require.Equal(t, int64(0), parent.BytesConsumed())
}

func buildEntries(t *testing.T, rel relation.Relation, keys []int) []rowEntry {
	rows, err := relation.Materialize(context.Background(), rel, 0)
	require.NoError(t, err)
	ents := make([]rowEntry, 0, len(rows))
	for i, row := range rows {
		ent := rowEntry{row: row, pos: int64(i)}
		ent.key, ent.null = codec.EncodeKey(nil, row, keys)
		ents = append(ents, ent)
	}
	return ents
}

func TestHashTableMemory(t *testing.T) {
	ents := buildEntries(t, intTable("t", 1, 2, 2, 3, 3, 3), []int{0})
	ents = append(ents, rowEntry{row: chunk.Row{nil}, null: true})
	tracker := memory.NewTracker("hash table", -1)
	ht := newHashTable(ents, tracker)

	var want int64
	seen := make(map[string]struct{})
	for _, ent := range ents {
		if ent.null {
			continue
		}
		if _, ok := seen[string(ent.key)]; !ok {
			seen[string(ent.key)] = struct{}{}
			want += int64(len(ent.key)) + hashKeySize
		}
		want += hashOffsetSize
	}
	require.Equal(t, want, ht.memUsage)
	require.Equal(t, want, tracker.BytesConsumed())
	require.Len(t, ht.lookup(&ents[3]), 3)
	require.Empty(t, ht.lookup(&ents[len(ents)-1]))
}

func TestHashTableMemoryTracked(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	left, right := genTable("l", rng, 300, 20), genTable("r", rng, 200, 20)
	spec := equiSpec(left, right, logicalop.InnerJoin)
	var leftUsage, rightUsage int64
	for _, ent := range buildEntries(t, left, []int{0}) {
		leftUsage += ent.memUsage()
	}
	rightEnts := buildEntries(t, right, []int{0})
	for _, ent := range rightEnts {
		rightUsage += ent.memUsage()
	}

	// the broadcast executor holds the build rows and their hash table.
	parent := memory.NewTracker("driver", -1)
	exec, err := Build(strategy.Decision{Strategy: strategy.Broadcast, BuildSide: strategy.BuildRight}, spec,
		Options{WorkerCount: 2, ParentTracker: parent})
	require.NoError(t, err)
	_, err = drain(context.Background(), t, exec, 64)
	require.NoError(t, err)
	require.Equal(t, rightUsage+newHashTable(rightEnts, nil).memUsage, exec.MemTracker().MaxConsumed())
	require.Equal(t, exec.MemTracker().MaxConsumed(), parent.MaxConsumed())
	require.Zero(t, parent.BytesConsumed())

	// the partition hash tables of the shuffle hash executor count on top of
	// both shuffled sides.
	parent = memory.NewTracker("driver", -1)
	exec, err = Build(strategy.Decision{Strategy: strategy.ShuffleHash, BuildSide: strategy.BuildRight}, spec,
		Options{WorkerCount: 2, ShufflePartitions: 4, ParentTracker: parent})
	require.NoError(t, err)
	_, err = drain(context.Background(), t, exec, 64)
	require.NoError(t, err)
	require.Greater(t, exec.MemTracker().MaxConsumed(), leftUsage+rightUsage)
	require.Zero(t, parent.BytesConsumed())

	// a quota that holds the build rows but not the hash table fails.
	exec, err = Build(strategy.Decision{Strategy: strategy.Broadcast, BuildSide: strategy.BuildRight}, spec,
		Options{WorkerCount: 2, MemQuota: rightUsage + 1})
	require.NoError(t, err)
	_, err = drain(context.Background(), t, exec, 64)
	require.True(t, joinerrors.ErrOutOfMemory.Equal(err), "%v", err)
}

func TestCloseEarly(t *testing.T) {
	left := relation.NewSynthetic("l", keyValueSchema("l"), 20000, relation.ModGen(10), relation.FormatGen("l-%d"))
	right := relation.NewSynthetic("r", keyValueSchema("r"), 2000, relation.ModGen(10), relation.FormatGen("r-%d"))
	spec := equiSpec(left, right, logicalop.InnerJoin)
	ctx := context.Background()
	for _, dc := range allDecisions(strategy.PredicateEqui) {
		exec, err := Build(dc.decision, spec, Options{WorkerCount: 4, ShufflePartitions: 4, ChunkSize: 32})
		require.NoError(t, err)
		require.NoError(t, exec.Open(ctx))
		chk := chunk.New(32)
		require.NoError(t, exec.Next(ctx, chk))
		require.Positive(t, chk.NumRows())
		require.NoError(t, exec.Close())
		// closed executors return no more rows.
		require.NoError(t, exec.Next(ctx, chk))
		require.Zero(t, chk.NumRows())
		require.NoError(t, exec.Close())
	}
}

type blockingIterator struct{}

func (blockingIterator) Next(ctx context.Context, _ *chunk.Chunk) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingIterator) Close() error { return nil }

func TestCancelContext(t *testing.T) {
	blocking := relation.NewStream("b", keyValueSchema("b"), func(context.Context) (relation.RowIterator, error) {
		return blockingIterator{}, nil
	})
	spec := equiSpec(blocking, intTable("r", 1), logicalop.InnerJoin)
	for _, dc := range allDecisions(strategy.PredicateEqui) {
		ctx, cancel := context.WithCancel(context.Background())
		exec, err := Build(dc.decision, spec, Options{WorkerCount: 2})
		require.NoError(t, err)
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err = drain(ctx, t, exec, 8)
		require.ErrorContains(t, err, context.Canceled.Error(), dc.name)
		cancel()
	}
}

type failingIterator struct{}

func (failingIterator) Next(context.Context, *chunk.Chunk) error {
	return fmt.Errorf("disk is on fire")
}
func (failingIterator) Close() error { return nil }

func TestSourceError(t *testing.T) {
	failing := relation.NewStream("f", keyValueSchema("f"), func(context.Context) (relation.RowIterator, error) {
		return failingIterator{}, nil
	})
	for _, dc := range allDecisions(strategy.PredicateEqui) {
		exec, err := Build(dc.decision, equiSpec(intTable("l", 1, 2), failing, logicalop.LeftOuterJoin), Options{WorkerCount: 2})
		require.NoError(t, err)
		_, err = drain(context.Background(), t, exec, 8)
		require.ErrorContains(t, err, "disk is on fire", dc.name)
	}
}

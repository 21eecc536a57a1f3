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
	"time"

	"github.com/pingcap/joinstrategy/pkg/executor/join"
	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ResultSet is a single-pass stream of join output rows. It is finished when
// Next returns an empty chunk or an error, or when it is closed; closing it
// early stops the join workers.
type ResultSet struct {
	ctx      context.Context
	exec     join.Executor
	strategy strategy.Strategy
	start    time.Time

	rows     atomic.Int64
	elapsed  atomic.Duration
	finished atomic.Bool
	err      error
}

func newResultSet(ctx context.Context, exec join.Executor, s strategy.Strategy, start time.Time) *ResultSet {
	return &ResultSet{ctx: ctx, exec: exec, strategy: s, start: start}
}

// Schema returns the schema of the output rows.
func (rs *ResultSet) Schema() *types.Schema {
	return rs.exec.Schema()
}

// NewChunk creates a chunk for Next.
func (rs *ResultSet) NewChunk(maxRows int) *chunk.Chunk {
	return chunk.New(maxRows)
}

// Next fills chk with the next rows, an empty chk means the end.
func (rs *ResultSet) Next(ctx context.Context, chk *chunk.Chunk) error {
	if rs.finished.Load() {
		chk.Reset()
		return rs.err
	}
	err := rs.exec.Next(ctx, chk)
	rs.rows.Add(int64(chk.NumRows()))
	if err != nil || chk.NumRows() == 0 {
		rs.err = err
		rs.finish()
	}
	return err
}

// Close stops the join and releases its resources. It is safe to call Close
// more than once.
func (rs *ResultSet) Close() error {
	return rs.finish()
}

func (rs *ResultSet) finish() error {
	if !rs.finished.CompareAndSwap(false, true) {
		return nil
	}
	err := rs.exec.Close()
	elapsed := time.Since(rs.start)
	rs.elapsed.Store(elapsed)
	label := string(rs.strategy)
	metrics.JoinDurationHistogram.WithLabelValues(label).Observe(elapsed.Seconds())
	metrics.JoinRowsCounter.WithLabelValues(label).Add(float64(rs.rows.Load()))
	logutil.Logger(rs.ctx).Info("join finished",
		zap.String("strategy", label),
		zap.Int64("rows", rs.rows.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Int64("max-memory", rs.exec.MemTracker().MaxConsumed()),
		zap.Error(rs.err))
	return err
}

// RowsProduced returns the number of rows returned so far.
func (rs *ResultSet) RowsProduced() int64 {
	return rs.rows.Load()
}

// Elapsed returns the wall time from the start of Driver.Run until the result
// set finished, or until now if it has not.
func (rs *ResultSet) Elapsed() time.Duration {
	if rs.finished.Load() {
		return rs.elapsed.Load()
	}
	return time.Since(rs.start)
}

// Finished returns whether all rows are returned or the result set is closed.
func (rs *ResultSet) Finished() bool {
	return rs.finished.Load()
}

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

	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"github.com/pingcap/joinstrategy/pkg/util/memory"
	"go.uber.org/zap"
)

// Executor is a physical join operator. Next fills chk with output rows, an
// empty chk means all rows are returned. Close may be called at any time to
// stop the workers.
type Executor interface {
	Open(ctx context.Context) error
	Next(ctx context.Context, chk *chunk.Chunk) error
	Close() error
	Schema() *types.Schema
	// MemTracker tracks the materialized state of the executor.
	MemTracker() *memory.Tracker
}

// Options controls the resources used by an executor.
type Options struct {
	WorkerCount       int
	ShufflePartitions int
	ChunkSize         int
	// MemQuota limits the memory of the executor, <= 0 means no limit.
	MemQuota int64
	// PartitionMemoryBudget limits the build side of one shuffle hash
	// partition, <= 0 means no limit.
	PartitionMemoryBudget int64
	// ParentTracker is optional, the executor tracker is attached to it.
	ParentTracker *memory.Tracker
}

// NewOptions creates Options from the join config.
func NewOptions(cfg *config.Join) Options {
	return Options{
		WorkerCount:           cfg.WorkerCount,
		ShufflePartitions:     cfg.ShufflePartitions,
		ChunkSize:             cfg.ChunkSize,
		MemQuota:              int64(cfg.MemQuota),
		PartitionMemoryBudget: int64(cfg.PartitionMemoryBudget),
	}
}

func (o Options) normalize() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 1
	}
	if o.ShufflePartitions <= 0 {
		o.ShufflePartitions = 1
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = config.DefaultChunkSize
	}
	return o
}

// errStopped means the consumer has closed the executor, it is never
// returned to the consumer.
var errStopped = errors.New("join executor is closed")

type joinResult struct {
	chk *chunk.Chunk
	err error
}

// baseJoinExec runs a join in background workers and streams the result
// chunks to Next through a bounded queue. Each join strategy provides the
// runJoin function which is called once, in its own goroutine.
type baseJoinExec struct {
	label     string
	left      relation.Relation
	right     relation.Relation
	leftKeys  []int
	rightKeys []int
	joinType  logicalop.JoinType
	schema    *types.Schema
	opts      Options

	leftWidth  int
	rightWidth int

	runJoin func(ctx context.Context) error

	memTracker  *memory.Tracker
	resultQueue *chunk.MPMCQueue[*joinResult]
	closeCh     chan struct{}
	cancel      context.CancelFunc
	workerWg    util.WaitGroupWrapper

	prepared bool
	closed   bool
	pending  *chunk.Chunk
	cursor   int
}

func newBaseJoinExec(label string, spec *logicalop.JoinSpec, opts Options) baseJoinExec {
	return baseJoinExec{
		label:      label,
		left:       spec.Left,
		right:      spec.Right,
		leftKeys:   spec.LeftKeys(),
		rightKeys:  spec.RightKeys(),
		joinType:   spec.JoinType,
		schema:     spec.Schema(),
		opts:       opts.normalize(),
		leftWidth:  spec.Left.Schema().Len(),
		rightWidth: spec.Right.Schema().Len(),
	}
}

// Schema implements the Executor interface.
func (e *baseJoinExec) Schema() *types.Schema {
	return e.schema
}

// MemTracker implements the Executor interface.
func (e *baseJoinExec) MemTracker() *memory.Tracker {
	return e.memTracker
}

// Open implements the Executor interface.
func (e *baseJoinExec) Open(context.Context) error {
	e.memTracker = memory.NewTracker(e.label, e.opts.MemQuota)
	if e.opts.ParentTracker != nil {
		e.memTracker.AttachTo(e.opts.ParentTracker)
	}
	e.resultQueue = chunk.NewMPMCQueue[*joinResult](e.opts.WorkerCount + 1)
	e.closeCh = make(chan struct{})
	e.prepared = false
	e.closed = false
	return nil
}

// Next implements the Executor interface. The join starts in background at
// the first call.
func (e *baseJoinExec) Next(ctx context.Context, chk *chunk.Chunk) error {
	chk.Reset()
	if e.closed {
		return nil
	}
	if !e.prepared {
		e.prepared = true
		runCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		e.workerWg.RunWithRecover(func() {
			e.finishJoin(runCtx, e.runJoin(runCtx))
		}, e.handleJoinPanic)
	}
	for !chk.IsFull() {
		if e.pending == nil || e.cursor >= e.pending.NumRows() {
			if chk.NumRows() > 0 {
				return nil
			}
			result, status := e.resultQueue.Pop()
			if status != chunk.OK {
				return nil
			}
			if result.err != nil {
				return result.err
			}
			e.pending, e.cursor = result.chk, 0
			continue
		}
		chk.AppendRow(e.pending.GetRow(e.cursor))
		e.cursor++
	}
	return nil
}

func (e *baseJoinExec) finishJoin(ctx context.Context, err error) {
	if err != nil && errors.Cause(err) != errStopped {
		e.resultQueue.Push(&joinResult{err: err})
	}
	logutil.Logger(ctx).Debug("join workers finished",
		zap.String("executor", e.label),
		zap.Int64("max-memory", e.memTracker.MaxConsumed()),
		zap.Error(err))
}

// handleJoinPanic is always called when runJoin exits. All workers have
// exited by then, so no more results are pushed.
func (e *baseJoinExec) handleJoinPanic(r any) {
	if r != nil {
		e.resultQueue.Push(&joinResult{err: util.GetRecoverError(r)})
	}
	e.resultQueue.Close()
}

// Close implements the Executor interface.
func (e *baseJoinExec) Close() error {
	if e.closed || e.closeCh == nil {
		return nil
	}
	e.closed = true
	close(e.closeCh)
	if e.cancel != nil {
		e.cancel()
	}
	e.resultQueue.Cancel()
	e.workerWg.Wait()
	e.pending = nil
	e.memTracker.Consume(-e.memTracker.BytesConsumed())
	e.memTracker.Detach()
	return nil
}

// isClosed checks whether the consumer has closed the executor.
func (e *baseJoinExec) isClosed() bool {
	select {
	case <-e.closeCh:
		return true
	default:
		return false
	}
}

// checkAlive returns an error if workers should stop.
func (e *baseJoinExec) checkAlive(ctx context.Context) error {
	if e.isClosed() {
		return errStopped
	}
	return ctx.Err()
}

// joinRow concatenates a left and a right row, a nil side is padded with NULLs.
func (e *baseJoinExec) joinRow(left, right chunk.Row) chunk.Row {
	row := make(chunk.Row, e.leftWidth+e.rightWidth)
	copy(row, left)
	copy(row[e.leftWidth:], right)
	return row
}

// resultWriter batches output rows of one worker into chunks.
type resultWriter struct {
	e   *baseJoinExec
	chk *chunk.Chunk
}

func (e *baseJoinExec) newResultWriter() *resultWriter {
	return &resultWriter{e: e, chk: chunk.New(e.opts.ChunkSize)}
}

func (w *resultWriter) append(row chunk.Row) error {
	w.chk.AppendRow(row)
	if w.chk.IsFull() {
		return w.flush()
	}
	return nil
}

// appendJoined appends the join of a build row and a probe row in
// left-right order.
func (w *resultWriter) appendJoined(buildRow, probeRow chunk.Row, buildLeft bool) error {
	if buildLeft {
		return w.append(w.e.joinRow(buildRow, probeRow))
	}
	return w.append(w.e.joinRow(probeRow, buildRow))
}

func (w *resultWriter) flush() error {
	if w.chk.NumRows() == 0 {
		return nil
	}
	if w.e.resultQueue.Push(&joinResult{chk: w.chk}) != chunk.OK {
		return errStopped
	}
	w.chk = chunk.New(w.e.opts.ChunkSize)
	return nil
}

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

	"github.com/pingcap/failpoint"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// NestedLoopReplicateExec is the shuffle and replicate nested loop join. Both
// sides are split by row position into one partition per worker, and every
// pair of a left and a right partition is a task, so each right partition
// is replicated to all workers. Equality keys, if any, filter the pairs.
type NestedLoopReplicateExec struct {
	baseJoinExec
}

// NewNestedLoopReplicateExec creates a NestedLoopReplicateExec.
func NewNestedLoopReplicateExec(spec *logicalop.JoinSpec, opts Options) *NestedLoopReplicateExec {
	e := &NestedLoopReplicateExec{baseJoinExec: newBaseJoinExec("shuffle_replicate_nl", spec, opts)}
	e.runJoin = e.run
	return e
}

type nlTask struct {
	leftPart, rightPart int
}

func (e *NestedLoopReplicateExec) run(ctx context.Context) error {
	lefts, err := e.materialize(ctx, e.left, e.leftKeys)
	if err != nil {
		return err
	}
	rights, err := e.materialize(ctx, e.right, e.rightKeys)
	if err != nil {
		return err
	}
	workers := e.opts.WorkerCount
	leftParts, rightParts := splitByPosition(lefts, workers), splitByPosition(rights, workers)
	keyless := len(e.leftKeys) == 0
	// matched flags are indexed by input position.
	leftMatched := make([]atomic.Bool, len(lefts))
	rightMatched := make([]atomic.Bool, len(rights))

	taskCh := make(chan nlTask, workers*workers)
	for i := range workers {
		for j := range workers {
			taskCh <- nlTask{leftPart: i, rightPart: j}
		}
	}
	close(taskCh)

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() (err error) {
			defer recoverToError(&err)
			w := e.newResultWriter()
			for task := range taskCh {
				failpoint.Inject("nestedLoopTaskPanic", nil)
				if err := e.checkAlive(gctx); err != nil {
					return err
				}
				for li := range leftParts[task.leftPart] {
					l := &leftParts[task.leftPart][li]
					for ri := range rightParts[task.rightPart] {
						r := &rightParts[task.rightPart][ri]
						if !keysMatch(l, r, keyless) {
							continue
						}
						leftMatched[l.pos].Store(true)
						rightMatched[r.pos].Store(true)
						if err := w.append(e.joinRow(l.row, r.row)); err != nil {
							return err
						}
					}
				}
			}
			return w.flush()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := e.newResultWriter()
	if e.joinType.KeepLeftUnmatched() {
		for _, l := range lefts {
			if !leftMatched[l.pos].Load() {
				if err := w.append(e.joinRow(l.row, nil)); err != nil {
					return err
				}
			}
		}
	}
	if e.joinType.KeepRightUnmatched() {
		for _, r := range rights {
			if !rightMatched[r.pos].Load() {
				if err := w.append(e.joinRow(nil, r.row)); err != nil {
					return err
				}
			}
		}
	}
	return w.flush()
}

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
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/codec"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// BroadcastJoinExec is the broadcast join. One hash table is built over the
// whole build side and shared read-only by all probe workers, the probe side
// is streamed without shuffle. Without equality keys every probe row is
// joined with every build row (broadcast nested loop).
type BroadcastJoinExec struct {
	baseJoinExec
	buildLeft bool
}

// NewBroadcastJoinExec creates a BroadcastJoinExec.
func NewBroadcastJoinExec(spec *logicalop.JoinSpec, opts Options, buildSide strategy.BuildSide) *BroadcastJoinExec {
	e := &BroadcastJoinExec{
		baseJoinExec: newBaseJoinExec("broadcast", spec, opts),
		buildLeft:    buildSide == strategy.BuildLeft,
	}
	e.runJoin = e.run
	return e
}

func (e *BroadcastJoinExec) run(ctx context.Context) error {
	buildRel, buildKeys, probeRel, probeKeys := e.right, e.rightKeys, e.left, e.leftKeys
	keepBuild, keepProbe := e.joinType.KeepRightUnmatched(), e.joinType.KeepLeftUnmatched()
	if e.buildLeft {
		buildRel, buildKeys, probeRel, probeKeys = e.left, e.leftKeys, e.right, e.rightKeys
		keepBuild, keepProbe = keepProbe, keepBuild
	}
	keyless := len(buildKeys) == 0

	builds, err := e.materialize(ctx, buildRel, buildKeys)
	if err != nil {
		return err
	}
	var ht *hashTable
	if !keyless {
		ht = newHashTable(builds, e.memTracker)
	}
	buildMatched := make([]atomic.Bool, len(builds))

	g, gctx := errgroup.WithContext(ctx)
	batchCh := make(chan rowBatch, e.opts.WorkerCount)
	g.Go(func() (err error) {
		defer close(batchCh)
		defer recoverToError(&err)
		return e.fetchRows(gctx, probeRel, batchCh)
	})
	for range e.opts.WorkerCount {
		g.Go(func() (err error) {
			defer recoverToError(&err)
			w := e.newResultWriter()
			for batch := range batchCh {
				failpoint.Inject("broadcastProbePanic", nil)
				if err := e.checkAlive(gctx); err != nil {
					return err
				}
				for _, row := range batch.rows {
					if err := e.probeRow(row, probeKeys, builds, ht, buildMatched, keepProbe, w); err != nil {
						return err
					}
				}
			}
			return w.flush()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !keepBuild {
		return nil
	}
	w := e.newResultWriter()
	for i := range builds {
		if !buildMatched[i].Load() {
			if err := w.appendJoined(builds[i].row, nil, e.buildLeft); err != nil {
				return err
			}
		}
	}
	return w.flush()
}

func (e *BroadcastJoinExec) probeRow(row chunk.Row, probeKeys []int, builds []rowEntry, ht *hashTable,
	buildMatched []atomic.Bool, keepProbe bool, w *resultWriter) error {
	matched := false
	if ht == nil {
		for i := range builds {
			matched = true
			buildMatched[i].Store(true)
			if err := w.appendJoined(builds[i].row, row, e.buildLeft); err != nil {
				return err
			}
		}
	} else {
		probe := rowEntry{row: row}
		probe.key, probe.null = codec.EncodeKey(nil, row, probeKeys)
		for _, off := range ht.lookup(&probe) {
			matched = true
			buildMatched[off].Store(true)
			if err := w.appendJoined(builds[off].row, row, e.buildLeft); err != nil {
				return err
			}
		}
	}
	if !matched && keepProbe {
		return w.appendJoined(nil, row, e.buildLeft)
	}
	return nil
}

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

	"github.com/bits-and-blooms/bitset"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/util/memory"
	"golang.org/x/sync/errgroup"
)

// ShuffleHashJoinExec is the shuffle hash join. Both sides are shuffled by
// the hash of the join keys, then for every partition a hash table is built
// over the build side and probed with the other side. The build side of a
// partition is limited by Options.PartitionMemoryBudget, a skewed partition
// fails with ErrOutOfMemory.
type ShuffleHashJoinExec struct {
	baseJoinExec
	buildLeft bool
}

// NewShuffleHashJoinExec creates a ShuffleHashJoinExec.
func NewShuffleHashJoinExec(spec *logicalop.JoinSpec, opts Options, buildSide strategy.BuildSide) *ShuffleHashJoinExec {
	e := &ShuffleHashJoinExec{
		baseJoinExec: newBaseJoinExec("shuffle_hash", spec, opts),
		buildLeft:    buildSide == strategy.BuildLeft,
	}
	e.runJoin = e.run
	return e
}

func (e *ShuffleHashJoinExec) run(ctx context.Context) error {
	partitions := e.opts.ShufflePartitions
	leftParts, err := e.shuffle(ctx, e.left, e.leftKeys, partitions)
	if err != nil {
		return err
	}
	rightParts, err := e.shuffle(ctx, e.right, e.rightKeys, partitions)
	if err != nil {
		return err
	}
	buildParts, probeParts := rightParts, leftParts
	if e.buildLeft {
		buildParts, probeParts = leftParts, rightParts
	}

	partCh := make(chan int, partitions)
	for partID := range partitions {
		partCh <- partID
	}
	close(partCh)

	g, gctx := errgroup.WithContext(ctx)
	for range e.opts.WorkerCount {
		g.Go(func() (err error) {
			defer recoverToError(&err)
			w := e.newResultWriter()
			for partID := range partCh {
				if err := e.checkAlive(gctx); err != nil {
					return err
				}
				if err := e.joinPartition(partID, buildParts[partID], probeParts[partID], w); err != nil {
					return err
				}
			}
			return w.flush()
		})
	}
	return g.Wait()
}

// joinPartition joins one partition. The partition is owned by the calling
// worker, so matched flags need no synchronization.
func (e *ShuffleHashJoinExec) joinPartition(partID int, builds, probes []rowEntry, w *resultWriter) error {
	var buildUsage int64
	for i := range builds {
		buildUsage += builds[i].memUsage()
	}
	tracker := memory.NewTracker(fmt.Sprintf("shuffle_hash partition %d", partID), e.opts.PartitionMemoryBudget)
	tracker.AttachTo(e.memTracker)
	// The build rows were consumed by the executor during the shuffle. They
	// move to the partition so that its budget covers them.
	e.memTracker.Consume(-buildUsage)
	tracker.Consume(buildUsage)
	failpoint.Inject("buildHashTablePanic", nil)
	ht := newHashTable(builds, tracker)
	// the rows stay consumed until the executor is closed.
	defer tracker.Consume(-ht.memUsage)

	keepBuild, keepProbe := e.joinType.KeepRightUnmatched(), e.joinType.KeepLeftUnmatched()
	if e.buildLeft {
		keepBuild, keepProbe = keepProbe, keepBuild
	}
	matched := bitset.New(uint(len(builds)))
	for i := range probes {
		probe := &probes[i]
		offsets := ht.lookup(probe)
		for _, off := range offsets {
			matched.Set(uint(off))
			if err := w.appendJoined(builds[off].row, probe.row, e.buildLeft); err != nil {
				return err
			}
		}
		if len(offsets) == 0 && keepProbe {
			if err := w.appendJoined(nil, probe.row, e.buildLeft); err != nil {
				return err
			}
		}
	}
	if keepBuild {
		for i := range builds {
			if !matched.Test(uint(i)) {
				if err := w.appendJoined(builds[i].row, nil, e.buildLeft); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

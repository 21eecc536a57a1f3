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
	"bytes"
	"context"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"golang.org/x/sync/errgroup"
)

// MergeJoinExec is the shuffle sort merge join. Both sides are shuffled by
// the hash of the join keys, then every partition is sorted by key on both
// sides and merged. Rows of a key group on one side are joined with every
// row of the same key group on the other side.
type MergeJoinExec struct {
	baseJoinExec
}

// NewMergeJoinExec creates a MergeJoinExec.
func NewMergeJoinExec(spec *logicalop.JoinSpec, opts Options) *MergeJoinExec {
	e := &MergeJoinExec{baseJoinExec: newBaseJoinExec("shuffle_merge", spec, opts)}
	e.runJoin = e.run
	return e
}

func (e *MergeJoinExec) run(ctx context.Context) error {
	partitions := e.opts.ShufflePartitions
	leftParts, err := e.shuffle(ctx, e.left, e.leftKeys, partitions)
	if err != nil {
		return err
	}
	rightParts, err := e.shuffle(ctx, e.right, e.rightKeys, partitions)
	if err != nil {
		return err
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
				failpoint.Inject("mergeJoinPartitionPanic", nil)
				if err := e.checkAlive(gctx); err != nil {
					return err
				}
				if err := e.mergePartition(leftParts[partID], rightParts[partID], w); err != nil {
					return err
				}
			}
			return w.flush()
		})
	}
	return g.Wait()
}

// keyGroupEnd returns the end of the group of rows with the same key as ents[start].
func keyGroupEnd(ents []rowEntry, start int) int {
	end := start + 1
	for end < len(ents) && bytes.Equal(ents[end].key, ents[start].key) {
		end++
	}
	return end
}

func (e *MergeJoinExec) mergePartition(lefts, rights []rowEntry, w *resultWriter) error {
	lefts, leftNulls := splitNullKeys(lefts)
	rights, rightNulls := splitNullKeys(rights)
	sortByKey(lefts)
	sortByKey(rights)

	keepLeft, keepRight := e.joinType.KeepLeftUnmatched(), e.joinType.KeepRightUnmatched()
	i, j := 0, 0
	for i < len(lefts) && j < len(rights) {
		switch c := bytes.Compare(lefts[i].key, rights[j].key); {
		case c < 0:
			if keepLeft {
				if err := w.append(e.joinRow(lefts[i].row, nil)); err != nil {
					return err
				}
			}
			i++
		case c > 0:
			if keepRight {
				if err := w.append(e.joinRow(nil, rights[j].row)); err != nil {
					return err
				}
			}
			j++
		default:
			leftEnd, rightEnd := keyGroupEnd(lefts, i), keyGroupEnd(rights, j)
			for _, l := range lefts[i:leftEnd] {
				for _, r := range rights[j:rightEnd] {
					if err := w.append(e.joinRow(l.row, r.row)); err != nil {
						return err
					}
				}
			}
			i, j = leftEnd, rightEnd
		}
	}
	if keepLeft {
		for _, ents := range [][]rowEntry{lefts[i:], leftNulls} {
			for _, l := range ents {
				if err := w.append(e.joinRow(l.row, nil)); err != nil {
					return err
				}
			}
		}
	}
	if keepRight {
		for _, ents := range [][]rowEntry{rights[j:], rightNulls} {
			for _, r := range ents {
				if err := w.append(e.joinRow(nil, r.row)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

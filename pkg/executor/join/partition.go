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

	"github.com/jfcg/sorty/v2"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/util"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/codec"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// rowEntrySize approximates the fixed size of a rowEntry.
const rowEntrySize = 64

// rowEntry is an input row with its encoded join key and its position in
// the input relation.
type rowEntry struct {
	row chunk.Row
	key []byte
	pos int64
	// null is set if any key column is NULL, such a row never matches.
	null bool
}

func (r *rowEntry) memUsage() int64 {
	return r.row.MemoryUsage() + int64(cap(r.key)) + rowEntrySize
}

// keysMatch reports whether two rows join on the equality keys. Rows always
// match when there are no keys.
func keysMatch(a, b *rowEntry, keyless bool) bool {
	if keyless {
		return true
	}
	return !a.null && !b.null && bytes.Equal(a.key, b.key)
}

type rowBatch struct {
	rows  []chunk.Row
	start int64
}

// recoverToError converts a panic of a worker, like an exceeded memory
// quota, to its returned error.
func recoverToError(err *error) {
	if r := recover(); r != nil {
		*err = util.GetRecoverError(r)
	}
}

// fetchRows reads all rows of rel and sends them in batches.
func (e *baseJoinExec) fetchRows(ctx context.Context, rel relation.Relation, batchCh chan<- rowBatch) (err error) {
	iter, err := rel.Open(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		err = multierr.Append(err, iter.Close())
	}()
	var pos int64
	for {
		chk := chunk.New(e.opts.ChunkSize)
		if err := iter.Next(ctx, chk); err != nil {
			return errors.Trace(err)
		}
		if chk.NumRows() == 0 {
			return nil
		}
		select {
		case batchCh <- rowBatch{rows: chk.Rows(), start: pos}:
		case <-e.closeCh:
			return errStopped
		case <-ctx.Done():
			return ctx.Err()
		}
		pos += int64(chk.NumRows())
	}
}

// shuffle reads rel and splits its rows into partitionNum partitions by the
// hash of the key columns. Rows without keys or with NULL keys are spread by
// position. Every split worker owns its partition buffers until all workers
// finish, the buffers are then concatenated per partition.
func (e *baseJoinExec) shuffle(ctx context.Context, rel relation.Relation, keys []int, partitionNum int) ([][]rowEntry, error) {
	g, gctx := errgroup.WithContext(ctx)
	batchCh := make(chan rowBatch, e.opts.WorkerCount)
	g.Go(func() (err error) {
		defer close(batchCh)
		defer recoverToError(&err)
		return e.fetchRows(gctx, rel, batchCh)
	})

	workerParts := make([][][]rowEntry, e.opts.WorkerCount)
	for workerID := range e.opts.WorkerCount {
		g.Go(func() (err error) {
			defer recoverToError(&err)
			local := make([][]rowEntry, partitionNum)
			for batch := range batchCh {
				failpoint.Inject("splitPartitionPanic", nil)
				var consumed int64
				for i, row := range batch.rows {
					ent := rowEntry{row: row, pos: batch.start + int64(i)}
					partID := int(ent.pos % int64(partitionNum))
					if len(keys) > 0 {
						ent.key, ent.null = codec.EncodeKey(nil, row, keys)
						if !ent.null {
							partID = codec.PartitionOf(ent.key, partitionNum)
						}
					}
					local[partID] = append(local[partID], ent)
					consumed += ent.memUsage()
				}
				e.memTracker.Consume(consumed)
			}
			workerParts[workerID] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := make([][]rowEntry, partitionNum)
	for partID := range parts {
		n := 0
		for _, local := range workerParts {
			n += len(local[partID])
		}
		parts[partID] = make([]rowEntry, 0, n)
		for _, local := range workerParts {
			parts[partID] = append(parts[partID], local[partID]...)
		}
	}
	return parts, nil
}

// materialize reads all rows of rel, the result is not in input order.
func (e *baseJoinExec) materialize(ctx context.Context, rel relation.Relation, keys []int) ([]rowEntry, error) {
	parts, err := e.shuffle(ctx, rel, keys, 1)
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// splitByPosition splits rows into n partitions by position modulo n.
func splitByPosition(rows []rowEntry, n int) [][]rowEntry {
	parts := make([][]rowEntry, n)
	for _, ent := range rows {
		partID := int(ent.pos % int64(n))
		parts[partID] = append(parts[partID], ent)
	}
	return parts
}

// sortByKey sorts entries by key, ties are broken by input position so the
// sort is stable.
func sortByKey(ents []rowEntry) {
	sorty.Sort(len(ents), func(i, k, r, s int) bool {
		c := bytes.Compare(ents[i].key, ents[k].key)
		if c < 0 || (c == 0 && ents[i].pos < ents[k].pos) { // strict comparator like < or >
			if r != s {
				ents[r], ents[s] = ents[s], ents[r]
			}
			return true
		}
		return false
	})
}

// splitNullKeys moves entries with NULL keys to the second result.
func splitNullKeys(ents []rowEntry) (nonNull, nulls []rowEntry) {
	nonNull = make([]rowEntry, 0, len(ents))
	for _, ent := range ents {
		if ent.null {
			nulls = append(nulls, ent)
		} else {
			nonNull = append(nonNull, ent)
		}
	}
	return nonNull, nulls
}

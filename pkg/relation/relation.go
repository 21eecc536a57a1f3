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

package relation

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"go.uber.org/multierr"
)

// Relation is an ordered sequence of rows with a fixed schema. A relation
// must not change while a join reads it.
type Relation interface {
	// Name identifies the relation in hints, statistics and diagnostics.
	Name() string
	Schema() *types.Schema
	// Open returns a new single-pass iterator over the rows.
	Open(ctx context.Context) (RowIterator, error)
}

// RowIterator reads rows of a relation chunk by chunk. Next replaces the
// rows of chk and leaves it empty once the rows are exhausted.
type RowIterator interface {
	Next(ctx context.Context, chk *chunk.Chunk) error
	Close() error
}

// Introspector is implemented by relations which know their own size.
type Introspector interface {
	RowCount() int64
	ByteSize() int64
	// SortedBy returns the names of columns the rows are sorted by, may be nil.
	SortedBy() []string
}

// DefaultChunkSize is the chunk size used by Materialize.
const DefaultChunkSize = 1024

// Materialize reads all rows of rel into memory.
func Materialize(ctx context.Context, rel Relation, chunkSize int) (rows []chunk.Row, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	iter, err := rel.Open(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() {
		err = multierr.Append(err, iter.Close())
	}()
	chk := chunk.New(chunkSize)
	for {
		chk.Reset()
		if err = iter.Next(ctx, chk); err != nil {
			return nil, errors.Trace(err)
		}
		if chk.NumRows() == 0 {
			return rows, nil
		}
		rows = append(rows, chk.Rows()...)
	}
}

// SliceIterator iterates over materialized rows.
type SliceIterator struct {
	rows   []chunk.Row
	cursor int
}

// NewSliceIterator creates an iterator over rows.
func NewSliceIterator(rows []chunk.Row) *SliceIterator {
	return &SliceIterator{rows: rows}
}

// Next implements the RowIterator interface.
func (it *SliceIterator) Next(ctx context.Context, chk *chunk.Chunk) error {
	chk.Reset()
	if err := ctx.Err(); err != nil {
		return err
	}
	for ; it.cursor < len(it.rows) && !chk.IsFull(); it.cursor++ {
		chk.AppendRow(it.rows[it.cursor])
	}
	return nil
}

// Close implements the RowIterator interface.
func (*SliceIterator) Close() error {
	return nil
}

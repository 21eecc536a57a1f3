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
	"fmt"

	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
)

// Generator computes the value of one column for the row with id i.
type Generator func(i int64) any

// Synthetic is a generated table of rows 0..n-1, like `range(n)` with derived
// columns. Rows are produced on the fly and never stored.
type Synthetic struct {
	name     string
	schema   *types.Schema
	numRows  int64
	gens     []Generator
	sortedBy []string
	byteSize int64
}

// sampleRows is the number of leading rows used to estimate the byte size.
const sampleRows = 128

// NewSynthetic creates a synthetic relation, gens has one generator per
// column. It panics if the leading rows do not fit the schema.
func NewSynthetic(name string, schema *types.Schema, numRows int64, gens ...Generator) *Synthetic {
	if len(gens) != schema.Len() {
		panic(fmt.Sprintf("synthetic table %s has %d columns but %d generators", name, schema.Len(), len(gens)))
	}
	s := &Synthetic{name: name, schema: schema, numRows: max(numRows, 0), gens: gens}
	s.byteSize = s.estimateByteSize()
	return s
}

func (s *Synthetic) estimateByteSize() int64 {
	n := min(s.numRows, sampleRows)
	if n == 0 {
		return 0
	}
	var sampled int64
	for i := range n {
		row := s.row(i)
		checkRow(s.name, s.schema, row)
		sampled += row.MemoryUsage()
	}
	return sampled * s.numRows / n
}

func (s *Synthetic) row(i int64) chunk.Row {
	row := make(chunk.Row, len(s.gens))
	for c, gen := range s.gens {
		row[c] = gen(i)
	}
	return row
}

// WithSortedBy marks the table as sorted by the named columns.
func (s *Synthetic) WithSortedBy(cols ...string) *Synthetic {
	s.sortedBy = cols
	return s
}

// Name implements the Relation interface.
func (s *Synthetic) Name() string { return s.name }

// Schema implements the Relation interface.
func (s *Synthetic) Schema() *types.Schema { return s.schema }

// Open implements the Relation interface.
func (s *Synthetic) Open(context.Context) (RowIterator, error) {
	return &syntheticIterator{s: s}, nil
}

// RowCount implements the Introspector interface.
func (s *Synthetic) RowCount() int64 { return s.numRows }

// ByteSize implements the Introspector interface. It is estimated from a
// sample of leading rows.
func (s *Synthetic) ByteSize() int64 { return s.byteSize }

// SortedBy implements the Introspector interface.
func (s *Synthetic) SortedBy() []string { return s.sortedBy }

type syntheticIterator struct {
	s    *Synthetic
	next int64
}

func (it *syntheticIterator) Next(ctx context.Context, chk *chunk.Chunk) error {
	chk.Reset()
	if err := ctx.Err(); err != nil {
		return err
	}
	for ; it.next < it.s.numRows && !chk.IsFull(); it.next++ {
		chk.AppendRow(it.s.row(it.next))
	}
	return nil
}

func (*syntheticIterator) Close() error { return nil }

// IDGen generates the row id.
func IDGen() Generator {
	return func(i int64) any { return i }
}

// ModGen generates the row id modulo m.
func ModGen(m int64) Generator {
	return func(i int64) any { return i % m }
}

// FormatGen generates fmt.Sprintf(format, id).
func FormatGen(format string) Generator {
	return func(i int64) any { return fmt.Sprintf(format, i) }
}

// NullEveryGen wraps gen and returns NULL for every n-th row.
func NullEveryGen(n int64, gen Generator) Generator {
	return func(i int64) any {
		if n > 0 && i%n == 0 {
			return nil
		}
		return gen(i)
	}
}

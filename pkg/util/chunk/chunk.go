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

package chunk

import (
	"github.com/pingcap/joinstrategy/pkg/types"
)

// Row is a single row, one value per column. A nil value is NULL.
type Row []any

// IsNull returns whether the value at colIdx is NULL.
func (r Row) IsNull(colIdx int) bool {
	return r[colIdx] == nil
}

// MemoryUsage returns the approximate memory usage of the row.
func (r Row) MemoryUsage() int64 {
	sum := int64(types.RowHeaderSize)
	for _, v := range r {
		sum += types.EstimateSize(v)
	}
	return sum
}

// Chunk is a bounded batch of rows passed between executors. A Next call
// which leaves the chunk empty means the source is exhausted.
type Chunk struct {
	rows     []Row
	capacity int
}

// New creates a new chunk which holds at most maxChunkSize rows.
func New(maxChunkSize int) *Chunk {
	if maxChunkSize <= 0 {
		maxChunkSize = 1
	}
	return &Chunk{
		rows:     make([]Row, 0, min(maxChunkSize, 64)),
		capacity: maxChunkSize,
	}
}

// NumRows returns the number of rows in the chunk.
func (c *Chunk) NumRows() int {
	return len(c.rows)
}

// GetRow gets the Row in the chunk with the row index.
func (c *Chunk) GetRow(idx int) Row {
	return c.rows[idx]
}

// Rows returns the rows of the chunk. The slice is only valid until the
// chunk is reset.
func (c *Chunk) Rows() []Row {
	return c.rows
}

// AppendRow appends a row to the chunk.
func (c *Chunk) AppendRow(row Row) {
	c.rows = append(c.rows, row)
}

// IsFull returns if this chunk reaches its capacity.
func (c *Chunk) IsFull() bool {
	return len(c.rows) >= c.capacity
}

// Reset resets the chunk, so the memory it allocated can be reused.
func (c *Chunk) Reset() {
	clear(c.rows)
	c.rows = c.rows[:0]
}

// MemoryUsage returns the approximate memory usage of the rows.
func (c *Chunk) MemoryUsage() int64 {
	var sum int64
	for _, row := range c.rows {
		sum += row.MemoryUsage()
	}
	return sum
}

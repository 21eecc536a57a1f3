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

// MemTable is a materialized, introspectable relation.
type MemTable struct {
	name     string
	schema   *types.Schema
	rows     []chunk.Row
	byteSize int64
	sortedBy []string
}

// NewMemTable creates a MemTable. The rows are not copied. It panics if a
// row does not fit the schema.
func NewMemTable(name string, schema *types.Schema, rows []chunk.Row) *MemTable {
	t := &MemTable{name: name, schema: schema, rows: rows}
	for _, row := range rows {
		checkRow(name, schema, row)
		t.byteSize += row.MemoryUsage()
	}
	return t
}

// WithSortedBy marks the table as sorted by the named columns.
func (t *MemTable) WithSortedBy(cols ...string) *MemTable {
	t.sortedBy = cols
	return t
}

// Name implements the Relation interface.
func (t *MemTable) Name() string { return t.name }

// Schema implements the Relation interface.
func (t *MemTable) Schema() *types.Schema { return t.schema }

// Open implements the Relation interface.
func (t *MemTable) Open(context.Context) (RowIterator, error) {
	return NewSliceIterator(t.rows), nil
}

// Rows returns the rows of the table.
func (t *MemTable) Rows() []chunk.Row { return t.rows }

// RowCount implements the Introspector interface.
func (t *MemTable) RowCount() int64 { return int64(len(t.rows)) }

// ByteSize implements the Introspector interface.
func (t *MemTable) ByteSize() int64 { return t.byteSize }

// SortedBy implements the Introspector interface.
func (t *MemTable) SortedBy() []string { return t.sortedBy }

// checkRow panics if row does not fit schema.
func checkRow(name string, schema *types.Schema, row chunk.Row) {
	if len(row) != schema.Len() {
		panic(fmt.Sprintf("table %s has %d columns but a row has %d values", name, schema.Len(), len(row)))
	}
	for i, v := range row {
		if col := schema.Columns[i]; !types.CheckValue(col.Tp, v) {
			panic(fmt.Sprintf("column %s.%s of type %s does not accept %T", name, col.Name, col.Tp, v))
		}
	}
}

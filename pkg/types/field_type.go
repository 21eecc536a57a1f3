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

package types

import (
	"cmp"
	"fmt"
	"strings"
)

// EvalType indicates the type of a column value.
type EvalType byte

const (
	// ETInt represents type INT, values are int64.
	ETInt EvalType = iota
	// ETReal represents type REAL, values are float64.
	ETReal
	// ETString represents type STRING, values are string.
	ETString
	// ETBool represents type BOOL, values are bool.
	ETBool
)

// String implements fmt.Stringer interface.
func (et EvalType) String() string {
	switch et {
	case ETInt:
		return "Int"
	case ETReal:
		return "Real"
	case ETString:
		return "String"
	case ETBool:
		return "Bool"
	}
	return fmt.Sprintf("EvalType(%d)", byte(et))
}

// Column describes one column of a relation.
type Column struct {
	Name    string
	Tp      EvalType
	NotNull bool
}

// Schema is the ordered column list of a relation.
type Schema struct {
	Columns []*Column
}

// NewSchema creates a schema from columns.
func NewSchema(cols ...*Column) *Schema {
	return &Schema{Columns: cols}
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.Columns)
}

// ColumnIndex returns the offset of the named column, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer interface.
func (s *Schema) String() string {
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		names = append(names, col.Name+" "+col.Tp.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// MergeSchema builds the output schema of a join: left columns followed by
// right columns. Columns of a side that may be padded with NULLs lose their
// NOT NULL flag.
func MergeSchema(left, right *Schema, leftNullable, rightNullable bool) *Schema {
	cols := make([]*Column, 0, left.Len()+right.Len())
	for _, col := range left.Columns {
		c := *col
		c.NotNull = c.NotNull && !leftNullable
		cols = append(cols, &c)
	}
	for _, col := range right.Columns {
		c := *col
		c.NotNull = c.NotNull && !rightNullable
		cols = append(cols, &c)
	}
	return &Schema{Columns: cols}
}

// Compare compares two values of the same EvalType. NULL (nil) is smaller
// than any other value and equal to NULL.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64))
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	panic(fmt.Sprintf("unsupported value type %T", a))
}

// CheckValue reports whether v is a valid value for EvalType et.
func CheckValue(et EvalType, v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case int64:
		return et == ETInt
	case float64:
		return et == ETReal
	case string:
		return et == ETString
	case bool:
		return et == ETBool
	}
	return false
}

const (
	// valueHeaderSize approximates the interface header every value carries.
	valueHeaderSize = 16
	// RowHeaderSize approximates the slice header of a row.
	RowHeaderSize = 24
)

// EstimateSize returns the approximate in-memory size of a value in bytes.
func EstimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return valueHeaderSize
	case string:
		return valueHeaderSize + int64(len(x))
	case bool:
		return valueHeaderSize + 1
	default:
		return valueHeaderSize + 8
	}
}

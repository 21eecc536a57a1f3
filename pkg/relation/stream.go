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

	"github.com/pingcap/joinstrategy/pkg/types"
)

// Stream wraps an arbitrary iterator factory. Its size is unknown, so it
// does not implement Introspector.
type Stream struct {
	name   string
	schema *types.Schema
	open   func(ctx context.Context) (RowIterator, error)
}

// NewStream creates a Stream.
func NewStream(name string, schema *types.Schema, open func(ctx context.Context) (RowIterator, error)) *Stream {
	return &Stream{name: name, schema: schema, open: open}
}

// Name implements the Relation interface.
func (s *Stream) Name() string { return s.name }

// Schema implements the Relation interface.
func (s *Stream) Schema() *types.Schema { return s.schema }

// Open implements the Relation interface.
func (s *Stream) Open(ctx context.Context) (RowIterator, error) {
	return s.open(ctx)
}

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

package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/chunk"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// tableInfo is a registered table and its analyzed statistics.
type tableInfo struct {
	rel      relation.Relation
	analyzed bool
	rowCount int64
	byteSize int64
}

type schemaTables struct {
	tables map[string]*tableInfo
}

// Catalog holds databases of named relations. Names are case-insensitive.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	schemas map[string]*schemaTables
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{schemas: make(map[string]*schemaTables)}
}

// NewSessionDatabaseName returns a database name unique to a session, so
// concurrent sessions do not collide.
func NewSessionDatabaseName(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return "session_" + id
	}
	return prefix + "_" + id
}

// CreateDatabase creates an empty database.
func (c *Catalog) CreateDatabase(db string) error {
	key := strings.ToLower(db)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.schemas[key]; ok {
		return joinerrors.ErrDatabaseExists.GenWithStackByArgs(db)
	}
	c.schemas[key] = &schemaTables{tables: make(map[string]*tableInfo)}
	logutil.BgLogger().Info("create database", zap.String("database", db))
	return nil
}

// DropDatabase drops a database and all of its tables.
func (c *Catalog) DropDatabase(db string) error {
	key := strings.ToLower(db)
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.schemas[key]
	if !ok {
		return joinerrors.ErrUnknownDatabase.GenWithStackByArgs(db)
	}
	delete(c.schemas, key)
	logutil.BgLogger().Info("drop database", zap.String("database", db), zap.Int("tables", len(st.tables)))
	return nil
}

// CreateTable registers rel as table tbl of database db.
func (c *Catalog) CreateTable(db, tbl string, rel relation.Relation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.schemas[strings.ToLower(db)]
	if !ok {
		return joinerrors.ErrUnknownDatabase.GenWithStackByArgs(db)
	}
	key := strings.ToLower(tbl)
	if _, ok := st.tables[key]; ok {
		return joinerrors.ErrTableExists.GenWithStackByArgs(db, tbl)
	}
	st.tables[key] = &tableInfo{rel: rel}
	return nil
}

func (c *Catalog) tableInfo(db, tbl string) (*tableInfo, error) {
	st, ok := c.schemas[strings.ToLower(db)]
	if !ok {
		return nil, joinerrors.ErrUnknownDatabase.GenWithStackByArgs(db)
	}
	info, ok := st.tables[strings.ToLower(tbl)]
	if !ok {
		return nil, joinerrors.ErrUnknownTable.GenWithStackByArgs(db, tbl)
	}
	return info, nil
}

// Table returns table tbl of database db. The returned relation is named
// "db.tbl" and only exposes statistics through the catalog.
func (c *Catalog) Table(db, tbl string) (relation.Relation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, err := c.tableInfo(db, tbl)
	if err != nil {
		return nil, err
	}
	return &catalogTable{name: db + "." + tbl, rel: info.rel}, nil
}

// Analyze scans the table and records its exact row count and byte size.
func (c *Catalog) Analyze(ctx context.Context, db, tbl string) (rowCount, byteSize int64, err error) {
	c.mu.RLock()
	info, err := c.tableInfo(db, tbl)
	c.mu.RUnlock()
	if err != nil {
		return 0, 0, err
	}
	rowCount, byteSize, err = scan(ctx, info.rel)
	if err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	info.analyzed, info.rowCount, info.byteSize = true, rowCount, byteSize
	c.mu.Unlock()
	logutil.Logger(logutil.WithCategory(ctx, "catalog")).Info("analyze table",
		zap.String("table", db+"."+tbl),
		zap.Int64("rows", rowCount),
		zap.Int64("bytes", byteSize))
	return rowCount, byteSize, nil
}

func scan(ctx context.Context, rel relation.Relation) (rowCount, byteSize int64, err error) {
	iter, err := rel.Open(ctx)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	defer func() {
		err = multierr.Append(err, iter.Close())
	}()
	chk := chunk.New(relation.DefaultChunkSize)
	for {
		chk.Reset()
		if err := iter.Next(ctx, chk); err != nil {
			return 0, 0, errors.Trace(err)
		}
		if chk.NumRows() == 0 {
			return rowCount, byteSize, nil
		}
		rowCount += int64(chk.NumRows())
		byteSize += chk.MemoryUsage()
	}
}

// TableStats returns the analyzed statistics of a table named "db.tbl". ok
// is false if the table is unknown or not analyzed.
func (c *Catalog) TableStats(_ context.Context, name string) (rowCount, byteSize int64, ok bool) {
	db, tbl, found := strings.Cut(name, ".")
	if !found {
		return 0, 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, err := c.tableInfo(db, tbl)
	if err != nil || !info.analyzed {
		return 0, 0, false
	}
	return info.rowCount, info.byteSize, true
}

type catalogTable struct {
	name string
	rel  relation.Relation
}

func (t *catalogTable) Name() string { return t.name }

func (t *catalogTable) Schema() *types.Schema { return t.rel.Schema() }

func (t *catalogTable) Open(ctx context.Context) (relation.RowIterator, error) {
	return t.rel.Open(ctx)
}

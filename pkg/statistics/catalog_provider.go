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

package statistics

import (
	"context"

	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

// MetaService is the metadata service which keeps analyzed table sizes.
type MetaService interface {
	// TableStats returns the analyzed size of the named relation, ok is false
	// if the relation is unknown or has not been analyzed.
	TableStats(ctx context.Context, name string) (rowCount, byteSize int64, ok bool)
}

// CatalogProvider reads statistics from a MetaService.
type CatalogProvider struct {
	meta MetaService
}

// NewCatalogProvider creates a CatalogProvider.
func NewCatalogProvider(meta MetaService) *CatalogProvider {
	return &CatalogProvider{meta: meta}
}

// Stats implements the Provider interface.
func (p *CatalogProvider) Stats(ctx context.Context, rel relation.Relation) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rowCount, byteSize, ok := p.meta.TableStats(ctx, rel.Name())
	if !ok {
		metrics.StatsUnavailableCounter.Inc()
		return nil, joinerrors.ErrStatsUnavailable.GenWithStackByArgs(rel.Name())
	}
	return NewStats(rowCount, byteSize, nil, SourceCatalog), nil
}

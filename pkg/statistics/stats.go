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
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
)

// Source tells where statistics come from.
type Source string

// Statistics sources.
const (
	SourceIntrospect Source = "introspect"
	SourceCatalog    Source = "catalog"
	SourceManual     Source = "manual"
)

// Stats is the size summary of a relation used to pick a join strategy.
type Stats struct {
	RowCount   int64
	ByteSize   int64
	AvgRowSize float64
	// SortedBy lists the columns the relation is known to be sorted by.
	SortedBy []string
	Source   Source
}

// NewStats creates Stats and derives the average row size.
func NewStats(rowCount, byteSize int64, sortedBy []string, source Source) *Stats {
	s := &Stats{RowCount: rowCount, ByteSize: byteSize, SortedBy: sortedBy, Source: source}
	if rowCount > 0 {
		s.AvgRowSize = float64(byteSize) / float64(rowCount)
	}
	return s
}

// IsEmpty returns whether the relation has no rows.
func (s *Stats) IsEmpty() bool {
	return s.RowCount == 0
}

// String implements fmt.Stringer interface.
func (s *Stats) String() string {
	str := fmt.Sprintf("rows=%d size=%s source=%s", s.RowCount, units.BytesSize(float64(s.ByteSize)), s.Source)
	if len(s.SortedBy) > 0 {
		str += " sorted-by=" + strings.Join(s.SortedBy, ",")
	}
	return str
}

// Provider provides statistics of relations. Implementations must not modify
// the relation.
type Provider interface {
	// Stats returns ErrStatsUnavailable if the relation size is unknown.
	Stats(ctx context.Context, rel relation.Relation) (*Stats, error)
}

// IntrospectProvider reads statistics from relations implementing
// relation.Introspector.
type IntrospectProvider struct{}

// Stats implements the Provider interface.
func (IntrospectProvider) Stats(ctx context.Context, rel relation.Relation) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	intro, ok := rel.(relation.Introspector)
	if !ok {
		metrics.StatsUnavailableCounter.Inc()
		return nil, joinerrors.ErrStatsUnavailable.GenWithStackByArgs(rel.Name())
	}
	return NewStats(intro.RowCount(), intro.ByteSize(), intro.SortedBy(), SourceIntrospect), nil
}

// ChainProvider tries providers in order and returns the first success.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a ChainProvider.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// Stats implements the Provider interface. Errors other than
// ErrStatsUnavailable stop the chain.
func (c *ChainProvider) Stats(ctx context.Context, rel relation.Relation) (*Stats, error) {
	for _, p := range c.providers {
		s, err := p.Stats(ctx, rel)
		if err == nil {
			return s, nil
		}
		if !joinerrors.ErrStatsUnavailable.Equal(err) {
			return nil, errors.Trace(err)
		}
	}
	return nil, joinerrors.ErrStatsUnavailable.GenWithStackByArgs(rel.Name())
}

// StaticProvider serves fixed statistics by relation name. It is used to
// explain decisions for hypothetical sizes.
type StaticProvider map[string]*Stats

// Stats implements the Provider interface.
func (p StaticProvider) Stats(_ context.Context, rel relation.Relation) (*Stats, error) {
	if s, ok := p[rel.Name()]; ok {
		return s, nil
	}
	return nil, joinerrors.ErrStatsUnavailable.GenWithStackByArgs(rel.Name())
}

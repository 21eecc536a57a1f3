// Copyright 2023 PingCAP, Inc.
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
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/util"
	"go.uber.org/atomic"
)

// DefaultCacheCapacity is the default max number of cached statistics.
const DefaultCacheCapacity = 1024

// CachedProvider caches the statistics of another provider by relation name.
// Failures are not cached.
type CachedProvider struct {
	provider Provider
	cache    *ttlcache.Cache[string, *Stats]

	startOnce sync.Once
	started   atomic.Bool
	wg        util.WaitGroupWrapper
}

// NewCachedProvider creates a CachedProvider, entries expire after ttl.
func NewCachedProvider(provider Provider, ttl time.Duration, capacity uint64) *CachedProvider {
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	cache := ttlcache.New[string, *Stats](
		ttlcache.WithTTL[string, *Stats](ttl),
		ttlcache.WithCapacity[string, *Stats](capacity),
		ttlcache.WithDisableTouchOnHit[string, *Stats](),
	)
	return &CachedProvider{
		provider: provider,
		cache:    cache,
	}
}

// Start is used to start the background task of CachedProvider which
// cleans up expired entries.
func (p *CachedProvider) Start() {
	p.startOnce.Do(func() {
		p.started.Store(true)
		p.wg.Run(p.cache.Start)
	})
}

// Stop stops the background task of CachedProvider.
func (p *CachedProvider) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}
	p.cache.Stop()
	p.wg.Wait()
}

// Stats implements the Provider interface.
func (p *CachedProvider) Stats(ctx context.Context, rel relation.Relation) (*Stats, error) {
	key := rel.Name()
	failpoint.Inject("skipStatsCache", func() {
		p.cache.Delete(key)
	})
	if item := p.cache.Get(key); item != nil {
		metrics.StatsCacheCounter.WithLabelValues(metrics.LblHit).Inc()
		return item.Value(), nil
	}
	metrics.StatsCacheCounter.WithLabelValues(metrics.LblMiss).Inc()
	s, err := p.provider.Stats(ctx, rel)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p.cache.Set(key, s, ttlcache.DefaultTTL)
	return s, nil
}

// Invalidate drops the cached statistics of the named relation.
func (p *CachedProvider) Invalidate(name string) {
	p.cache.Delete(name)
}

// Len returns the number of cached entries.
func (p *CachedProvider) Len() int {
	return p.cache.Len()
}

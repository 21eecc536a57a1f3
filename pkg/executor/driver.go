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

package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/executor/join"
	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/statistics"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"github.com/pingcap/joinstrategy/pkg/util/memory"
	"go.uber.org/zap"
)

// Driver plans and runs joins.
type Driver struct {
	Stats statistics.Provider

	// memTracker is the parent of the trackers of all joins run by the driver.
	memTracker *memory.Tracker
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMemoryLimit logs a warning once the joins running on the driver
// together consume more than limit bytes. limit <= 0 means no warning.
func WithMemoryLimit(limit int64) DriverOption {
	return func(d *Driver) {
		d.memTracker = memory.NewTracker("join driver", limit)
		d.memTracker.SetActionOnExceed(&memory.LogOnExceed{})
	}
}

// NewDriver creates a Driver.
func NewDriver(stats statistics.Provider, opts ...DriverOption) *Driver {
	d := &Driver{Stats: stats, memTracker: memory.NewTracker("join driver", -1)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MemTracker returns the tracker of the memory used by running joins.
func (d *Driver) MemTracker() *memory.Tracker {
	return d.memTracker
}

// ExecutionResult is the result of Driver.Run. The caller owns it and must
// close the ResultSet.
type ExecutionResult struct {
	JoinID    string
	ResultSet *ResultSet
	Decision  strategy.Decision
	// LeftStats and RightStats are nil if unavailable.
	LeftStats  *statistics.Stats
	RightStats *statistics.Stats
	// SelectDuration covers statistics lookup and strategy selection.
	SelectDuration time.Duration
	// Warnings are hint warnings and statistics fallbacks.
	Warnings []string
}

// Strategy returns the strategy used.
func (r *ExecutionResult) Strategy() strategy.Strategy {
	return r.Decision.Strategy
}

// RowsProduced returns the number of rows returned by the result set so far.
func (r *ExecutionResult) RowsProduced() int64 {
	return r.ResultSet.RowsProduced()
}

// Elapsed returns the wall time of the join, see ResultSet.Elapsed.
func (r *ExecutionResult) Elapsed() time.Duration {
	return r.ResultSet.Elapsed()
}

// Run validates the spec, picks a strategy and opens its executor. Rows are
// produced lazily by the returned ResultSet.
func (d *Driver) Run(ctx context.Context, spec *logicalop.JoinSpec, cfg *config.Join) (_ *ExecutionResult, err error) {
	start := time.Now()
	joinID := uuid.NewString()
	ctx = logutil.WithJoinID(logutil.WithCategory(ctx, "join"), joinID)
	defer func() {
		if err != nil {
			metrics.JoinErrorCounter.WithLabelValues(metrics.ErrorToLabel(err)).Inc()
			logutil.Logger(ctx).Warn("join failed", zap.Stringer("join", spec), zap.Error(err))
		}
	}()

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	res := &ExecutionResult{JoinID: joinID}
	hint, warning := spec.Hint.Bind(spec.Left.Name(), spec.Right.Name())
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}

	res.LeftStats, err = d.relationStats(ctx, spec.Left, hint, cfg, res)
	if err != nil {
		return nil, err
	}
	res.RightStats, err = d.relationStats(ctx, spec.Right, hint, cfg, res)
	if err != nil {
		return nil, err
	}
	res.Decision = strategy.Select(res.LeftStats, res.RightStats, spec.PredicateKind(), hint, cfg)
	res.SelectDuration = time.Since(start)
	metrics.SelectDuration.Observe(res.SelectDuration.Seconds())

	opts := join.NewOptions(cfg)
	opts.ParentTracker = d.memTracker
	exec, err := join.Build(res.Decision, spec, opts)
	if err != nil {
		return nil, err
	}
	if err := exec.Open(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	metrics.JoinStrategyCounter.WithLabelValues(string(res.Decision.Strategy), string(res.Decision.Reason)).Inc()
	for _, w := range res.Warnings {
		logutil.Logger(ctx).Warn(w)
	}
	logutil.Logger(ctx).Info("join strategy selected",
		zap.Stringer("join", spec),
		zap.String("strategy", string(res.Decision.Strategy)),
		zap.String("reason", string(res.Decision.Reason)),
		zap.Stringer("build-side", res.Decision.BuildSide),
		statsField("left-stats", res.LeftStats),
		statsField("right-stats", res.RightStats),
		zap.String("explanation", res.Decision.Explanation),
		zap.Duration("select-duration", res.SelectDuration))
	res.ResultSet = newResultSet(ctx, exec, res.Decision.Strategy, start)
	return res, nil
}

// relationStats returns nil stats if they are unavailable and the join can
// go on without them: a hint is given or the config allows the fallback.
func (d *Driver) relationStats(ctx context.Context, rel relation.Relation, hint *strategy.Hint, cfg *config.Join, res *ExecutionResult) (*statistics.Stats, error) {
	s, err := d.Stats.Stats(ctx, rel)
	if err == nil {
		return s, nil
	}
	if !joinerrors.ErrStatsUnavailable.Equal(err) {
		return nil, errors.Trace(err)
	}
	if hint == nil && !cfg.StatsUnavailableFallback {
		return nil, err
	}
	res.Warnings = append(res.Warnings, "statistics unavailable for "+rel.Name()+", assume the worst case")
	return nil, nil
}

func statsField(key string, s *statistics.Stats) zap.Field {
	if s == nil {
		return zap.String(key, "unavailable")
	}
	return zap.Stringer(key, s)
}

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

package metrics

import (
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "joinstrategy"

// metrics labels.
const (
	LblStrategy = "strategy"
	LblReason   = "reason"
	LblResult   = "result"
	LblType     = "type"

	LblHit  = "hit"
	LblMiss = "miss"
)

func init() {
	InitMetrics()
}

// InitMetrics is used to initialize metrics.
func InitMetrics() {
	InitJoinMetrics()
	InitStatsMetrics()
}

// NewCounter wraps a prometheus.NewCounter.
func NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return prometheus.NewCounter(opts)
}

// NewCounterVec wraps a prometheus.NewCounterVec.
func NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(opts, labelNames)
}

// NewHistogram wraps a prometheus.NewHistogram.
func NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	return prometheus.NewHistogram(opts)
}

// NewHistogramVec wraps a prometheus.NewHistogramVec.
func NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(opts, labelNames)
}

// RegisterMetrics registers all metrics to registerer.
func RegisterMetrics(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		JoinStrategyCounter,
		JoinDurationHistogram,
		JoinRowsCounter,
		JoinErrorCounter,
		SelectDuration,
		StatsCacheCounter,
		StatsUnavailableCounter,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ErrorToLabel converts an error to a short label for metrics.
func ErrorToLabel(err error) string {
	if terr, ok := errors.Cause(err).(*errors.Error); ok {
		return string(terr.RFCCode())
	}
	return "unknown"
}

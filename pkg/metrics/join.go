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
	"github.com/prometheus/client_golang/prometheus"
)

// Join metrics.
var (
	JoinStrategyCounter   *prometheus.CounterVec
	JoinDurationHistogram *prometheus.HistogramVec
	JoinRowsCounter       *prometheus.CounterVec
	JoinErrorCounter      *prometheus.CounterVec
	SelectDuration        prometheus.Histogram
)

// InitJoinMetrics initializes join metrics.
func InitJoinMetrics() {
	JoinStrategyCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "strategy_total",
			Help:      "Counter of chosen join strategies.",
		}, []string{LblStrategy, LblReason})

	JoinDurationHistogram = NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of join execution time (s).",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 24), // 0.5ms ~ 70min
		}, []string{LblStrategy})

	JoinRowsCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "rows_total",
			Help:      "Counter of rows produced by joins.",
		}, []string{LblStrategy})

	JoinErrorCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "error_total",
			Help:      "Counter of failed joins.",
		}, []string{LblType})

	SelectDuration = NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "select_duration_seconds",
			Help:      "Bucketed histogram of strategy selection time (s), statistics included.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20), // 10us ~ 5s
		})
}

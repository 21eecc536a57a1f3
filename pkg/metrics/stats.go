// Copyright 2018 PingCAP, Inc.
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

// Stats metrics.
var (
	StatsCacheCounter       *prometheus.CounterVec
	StatsUnavailableCounter prometheus.Counter
)

// InitStatsMetrics initializes stats metrics.
func InitStatsMetrics() {
	StatsCacheCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "stats_cache_op",
			Help:      "Counter for statsCache operation",
		}, []string{LblResult})

	StatsUnavailableCounter = NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "stats_unavailable_total",
			Help:      "Counter of relations whose statistics can not be obtained.",
		})
}

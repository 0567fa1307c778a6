// Copyright 2024 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"github.com/cockroachdb/dataflow/internal/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oplog_append_duration_seconds",
		Help:    "the length of time it took to append a record to an endpoint's operation log",
		Buckets: metrics.LatencyBuckets,
	}, metrics.EndpointLabels)
	appendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oplog_append_errors_total",
		Help: "the number of times an error was encountered while appending to an endpoint's operation log",
	}, metrics.EndpointLabels)
)

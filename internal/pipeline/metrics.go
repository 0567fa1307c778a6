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

package pipeline

import (
	"github.com/cockroachdb/dataflow/internal/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_endpoint_commit_duration_seconds",
		Help:    "the length of time it took an endpoint to apply and commit an epoch",
		Buckets: metrics.LatencyBuckets,
	}, metrics.EndpointLabels)
	commitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_endpoint_commit_errors_total",
		Help: "the number of times an endpoint failed to commit an epoch",
	}, metrics.EndpointLabels)
)

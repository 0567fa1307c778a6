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

// Package metrics holds label and bucket constants shared by every
// package that registers Prometheus collectors, so histograms across
// the engine, the operation log, and the sinks stay comparable.
package metrics

// LatencyBuckets covers sub-millisecond node processing up through
// multi-second commit stalls.
var LatencyBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// NodeLabels identifies a dag node in per-node counters and
// histograms.
var NodeLabels = []string{"node"}

// EndpointLabels identifies a configured sink endpoint.
var EndpointLabels = []string{"endpoint"}

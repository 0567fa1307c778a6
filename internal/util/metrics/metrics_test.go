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

package metrics

import "testing"

func TestLatencyBucketsAreStrictlyIncreasing(t *testing.T) {
	for i := 1; i < len(LatencyBuckets); i++ {
		if LatencyBuckets[i] <= LatencyBuckets[i-1] {
			t.Fatalf("LatencyBuckets not strictly increasing at index %d: %v <= %v",
				i, LatencyBuckets[i], LatencyBuckets[i-1])
		}
	}
}

func TestLabelSetsNameTheirDimension(t *testing.T) {
	if len(NodeLabels) != 1 || NodeLabels[0] != "node" {
		t.Fatalf("NodeLabels = %v, want [\"node\"]", NodeLabels)
	}
	if len(EndpointLabels) != 1 || EndpointLabels[0] != "endpoint" {
		t.Fatalf("EndpointLabels = %v, want [\"endpoint\"]", EndpointLabels)
	}
}

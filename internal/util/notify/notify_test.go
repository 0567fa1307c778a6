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

package notify

import (
	"testing"
	"time"
)

func TestZeroVarReturnsZeroValue(t *testing.T) {
	var v Var[int]
	got, _ := v.Get()
	if got != 0 {
		t.Fatalf("Get() = %d, want 0", got)
	}
}

func TestSetUpdatesValueAndClosesChangedChannel(t *testing.T) {
	var v Var[string]
	_, changed := v.Get()

	v.Set("hello")

	select {
	case <-changed:
	default:
		t.Fatal("expected changed channel to be closed after Set")
	}

	got, _ := v.Get()
	if got != "hello" {
		t.Fatalf("Get() = %q, want %q", got, "hello")
	}
}

func TestUpdateAppliesFunctionAndWakesWaiters(t *testing.T) {
	var v Var[int]
	v.Set(1)
	_, changed := v.Get()

	v.Update(func(n int) int { return n + 1 })

	select {
	case <-changed:
	default:
		t.Fatal("expected changed channel to be closed after Update")
	}
	got, _ := v.Get()
	if got != 2 {
		t.Fatalf("Get() after Update = %d, want 2", got)
	}
}

func TestWaiterWakesWhenValueChangesConcurrently(t *testing.T) {
	var v Var[int]
	_, changed := v.Get()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-changed
	}()

	time.Sleep(5 * time.Millisecond)
	v.Set(42)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake within timeout after Set")
	}
}

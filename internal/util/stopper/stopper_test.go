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

package stopper

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestStopWaitsForWorkersToDrainCleanly(t *testing.T) {
	ctx := WithContext(context.Background())

	started := make(chan struct{})
	ctx.Go(func() error {
		close(started)
		<-ctx.Stopping()
		return nil
	})

	<-started
	require.NoError(t, ctx.Stop(time.Second))
}

func TestStopCollectsWorkerErrors(t *testing.T) {
	ctx := WithContext(context.Background())
	boom := errors.New("boom")

	ctx.Go(func() error {
		<-ctx.Stopping()
		return boom
	})

	err := ctx.Stop(time.Second)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestStopIgnoresContextCanceledFromWorkers(t *testing.T) {
	ctx := WithContext(context.Background())

	ctx.Go(func() error {
		<-ctx.Stopping()
		return context.Canceled
	})

	require.NoError(t, ctx.Stop(time.Second))
}

func TestStopForcesCancelAfterGraceExpires(t *testing.T) {
	ctx := WithContext(context.Background())

	exited := make(chan struct{})
	ctx.Go(func() error {
		<-ctx.Done()
		close(exited)
		return nil
	})

	require.NoError(t, ctx.Stop(10*time.Millisecond))
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("expected worker to observe Done() after grace elapsed")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := WithContext(context.Background())
	ctx.Go(func() error { <-ctx.Stopping(); return nil })

	require.NoError(t, ctx.Stop(time.Second))
	require.NoError(t, ctx.Stop(time.Second))
}

func TestStoppingChannelClosesOnStop(t *testing.T) {
	ctx := WithContext(context.Background())

	select {
	case <-ctx.Stopping():
		t.Fatal("expected Stopping() to be open before Stop")
	default:
	}

	go func() { _ = ctx.Stop(time.Second) }()

	select {
	case <-ctx.Stopping():
	case <-time.After(time.Second):
		t.Fatal("expected Stopping() to close after Stop")
	}
}

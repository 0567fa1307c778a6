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

// Package stopper provides cooperative goroutine lifecycle management
// for the engine's node workers. Every worker goroutine is spawned
// through a Context so that a single Stop call can request a graceful
// drain, wait for a grace window, and then force-cancel stragglers.
package stopper

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Context wraps a context.Context with goroutine tracking. It is safe
// for concurrent use.
type Context struct {
	context.Context

	cancel   context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once

	mu struct {
		sync.Mutex
		wg      sync.WaitGroup
		errs    []error
		stopped bool
	}
}

// WithContext creates a new stopper Context as a child of parent. The
// returned Context is canceled when Stop is called or when parent is
// canceled.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	ret := &Context{
		Context:  ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
	return ret
}

// Go spawns fn in a new goroutine tracked by the Context. If fn returns
// a non-nil error, it is recorded and will be returned by Stop.
// Go must not be called after Stop has begun draining.
func (c *Context) Go(fn func() error) {
	c.mu.Lock()
	c.mu.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.mu.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			c.mu.Lock()
			c.mu.errs = append(c.mu.errs, err)
			c.mu.Unlock()
		}
	}()
}

// Stopping returns a channel that is closed once Stop has been called.
// Workers should select on this channel to begin a graceful drain,
// distinct from Done(), which fires when Stop cancels the Context (after
// the workers drain, or once the grace window has elapsed) or when the
// parent context is canceled.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Stop requests that all goroutines spawned via Go begin draining and
// blocks until they exit. If grace elapses first, the Context's
// underlying context.Context is canceled to force any stragglers to
// observe Done(), and Stop keeps waiting for them to exit. The
// underlying context is canceled before Stop returns in either case.
// Stop may be called multiple times; only the first call has effect.
func (c *Context) Stop(grace time.Duration) error {
	c.stopOnce.Do(func() {
		close(c.stopping)

		done := make(chan struct{})
		go func() {
			c.mu.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			log.Warn("stopper: grace period exceeded, forcing cancellation")
			c.cancel()
			<-done
		}
		c.cancel()

		c.mu.Lock()
		c.mu.stopped = true
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mu.errs) == 0 {
		return nil
	}
	return errors.Wrap(multiError(c.mu.errs), "worker error during shutdown")
}

// multiError joins multiple worker errors into a single error value.
type multiError []error

func (m multiError) Error() string {
	if len(m) == 1 {
		return m[0].Error()
	}
	s := m[0].Error()
	for _, e := range m[1:] {
		s += "; " + e.Error()
	}
	return s
}

// Unwrap exposes the joined errors to errors.Is and errors.As.
func (m multiError) Unwrap() []error { return m }

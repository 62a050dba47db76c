/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package startStop provides a reusable start/stop/restart lifecycle wrapper
// around a pair of caller-supplied functions, tracking running state, uptime
// and the last errors reported by either function.
package startStop

import (
	"context"
	"time"

	libatm "github.com/sabouaram/tcpmsg/atomic"
)

// Func is the signature shared by the start and stop callbacks. It receives
// a context bound to the runner's current lifecycle and is cancelled by Stop.
type Func func(ctx context.Context) error

// StartStop manages the lifecycle of one start/stop function pair.
//
// Start launches the start function in a goroutine and returns immediately;
// Stop cancels the running instance's context and runs the stop function
// synchronously. Both are safe to call concurrently and from multiple
// goroutines.
type StartStop interface {
	// Start launches the start function. If an instance is already running,
	// it is stopped first. Start never blocks on the start function itself.
	Start(ctx context.Context) error
	// Stop cancels the running instance and runs the stop function. It is
	// a no-op, returning nil, when no instance is running.
	Stop(ctx context.Context) error
	// Restart stops the current instance (if any) and starts a new one.
	Restart(ctx context.Context) error
	// IsRunning reports whether the start function is currently active.
	IsRunning() bool
	// Uptime returns how long the current instance has been running, or
	// zero when not running.
	Uptime() time.Duration

	// ErrorsLast returns the most recently captured error, or nil.
	ErrorsLast() error
	// ErrorsList returns all errors captured since the last Start call.
	ErrorsList() []error
}

// New creates a StartStop runner around the given start and stop functions.
// Either may be nil; Start and Stop then still return nil and record an
// error naming the missing function (see ErrorsLast and ErrorsList) instead
// of panicking.
func New(start, stop Func) StartStop {
	return &runner{
		fctStart: start,
		fctStop:  stop,
		running:  libatm.NewValue[bool](),
		started:  libatm.NewValue[time.Time](),
	}
}

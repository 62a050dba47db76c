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

// Package ticker wraps a time.Ticker with a start/stop/restart lifecycle so
// periodic work can be driven by a context-aware function, with uptime
// tracking and error collection identical in spirit to the startStop runner.
package ticker

import (
	"context"
	"time"

	libatm "github.com/sabouaram/tcpmsg/atomic"
)

// defaultDuration is used whenever New is given a duration that cannot be
// used to build a valid time.Ticker (zero or negative).
const defaultDuration = 30 * time.Second

// Func is called once per tick with the ticker's running context and the
// underlying time.Ticker, mainly so it can reset the ticker if it needs to
// change pace.
type Func func(ctx context.Context, tck *time.Ticker) error

// Ticker runs Func periodically until stopped or its context is cancelled.
type Ticker interface {
	// Start begins firing the ticker function every configured duration. If
	// already running, the previous instance is stopped first.
	Start(ctx context.Context) error
	// Stop cancels the running instance and waits for it to exit. It is a
	// no-op, returning nil, when not running.
	Stop(ctx context.Context) error
	// Restart stops the current instance (if any) and starts a new one.
	Restart(ctx context.Context) error
	// IsRunning reports whether the ticker loop is currently active.
	IsRunning() bool
	// Uptime returns how long the current instance has been running, or
	// zero when not running.
	Uptime() time.Duration

	// ErrorsLast returns the most recently captured error, or nil.
	ErrorsLast() error
	// ErrorsList returns all errors captured since the last Start call.
	ErrorsList() []error
}

// New creates a Ticker that fires fct every d. A non-positive d falls back
// to defaultDuration. fct may be nil; each tick will then report an error
// instead of panicking.
func New(d time.Duration, fct Func) Ticker {
	if d <= 0 {
		d = defaultDuration
	}

	return &tick{
		duration: d,
		fct:      fct,
		running:  libatm.NewValue[bool](),
		started:  libatm.NewValue[time.Time](),
	}
}

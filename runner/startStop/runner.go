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

package startStop

import (
	"context"
	"fmt"
	"sync"
	"time"

	libatm "github.com/sabouaram/tcpmsg/atomic"
)

type runner struct {
	fctStart Func
	fctStop  Func

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running libatm.Value[bool]
	started libatm.Value[time.Time]

	errMu sync.Mutex
	errs  []error
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked(ctx)
	r.resetErrorsLocked()

	c, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)
	r.started.Store(time.Now())

	go r.run(c, r.done)

	return nil
}

func (r *runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.running.Store(false)
	defer r.started.Store(time.Time{})

	if r.fctStart == nil {
		r.addError(fmt.Errorf("invalid start function"))
		return
	}

	if err := r.fctStart(ctx); err != nil {
		r.addError(err)
	}
}

func (r *runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked(ctx)
	return nil
}

// stopLocked cancels the running instance, if any, waits for its goroutine
// to return and invokes the stop function exactly once. Caller must hold mu.
func (r *runner) stopLocked(ctx context.Context) {
	if r.cancel == nil {
		return
	}

	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil

	cancel()
	<-done

	if r.fctStop == nil {
		r.addError(fmt.Errorf("invalid stop function"))
		return
	}

	if err := r.fctStop(ctx); err != nil {
		r.addError(err)
	}
}

func (r *runner) Restart(ctx context.Context) error {
	return r.Start(ctx)
}

func (r *runner) IsRunning() bool {
	return r.running.Load()
}

func (r *runner) Uptime() time.Duration {
	st := r.started.Load()
	if st.IsZero() {
		return 0
	}
	return time.Since(st)
}

func (r *runner) addError(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *runner) resetErrorsLocked() {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errs = nil
}

func (r *runner) ErrorsLast() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *runner) ErrorsList() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

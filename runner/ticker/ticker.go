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

package ticker

import (
	"context"
	"fmt"
	"sync"
	"time"

	libatm "github.com/sabouaram/tcpmsg/atomic"
)

type tick struct {
	duration time.Duration
	fct      Func

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running libatm.Value[bool]
	started libatm.Value[time.Time]

	errMu sync.Mutex
	errs  []error
}

func (t *tick) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("invalid nil context")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.resetErrorsLocked()

	c, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)
	t.started.Store(time.Now())

	go t.run(c, t.done)

	return nil
}

func (t *tick) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.running.Store(false)
	defer t.started.Store(time.Time{})

	tk := time.NewTicker(t.duration)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.fct == nil {
				t.addError(fmt.Errorf("invalid function"))
				continue
			}
			if err := t.fct(ctx, tk); err != nil {
				t.addError(err)
			}
		}
	}
}

func (t *tick) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	return nil
}

func (t *tick) stopLocked() {
	if t.cancel == nil {
		return
	}

	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil

	cancel()
	<-done
}

func (t *tick) Restart(ctx context.Context) error {
	return t.Start(ctx)
}

func (t *tick) IsRunning() bool {
	return t.running.Load()
}

func (t *tick) Uptime() time.Duration {
	st := t.started.Load()
	if st.IsZero() {
		return 0
	}
	return time.Since(st)
}

func (t *tick) addError(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	t.errs = append(t.errs, err)
}

func (t *tick) resetErrorsLocked() {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	t.errs = nil
}

func (t *tick) ErrorsLast() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if len(t.errs) == 0 {
		return nil
	}
	return t.errs[len(t.errs)-1]
}

func (t *tick) ErrorsList() []error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}

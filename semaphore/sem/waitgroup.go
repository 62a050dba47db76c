/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

package sem

import (
	"context"
	"sync"
)

// waitGroupSem is the unlimited semaphore used when New is called with a
// negative nbrSimultaneous: every NewWorker/NewWorkerTry call succeeds, and
// WaitAll blocks until every acquired worker has been released.
type waitGroupSem struct {
	context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func newWaitGroup(ctx context.Context) Semaphore {
	c, cancel := context.WithCancel(ctx)

	return &waitGroupSem{
		Context: c,
		cancel:  cancel,
	}
}

func (w *waitGroupSem) New() Semaphore {
	return newWaitGroup(w.Context)
}

func (w *waitGroupSem) NewWorker() error {
	w.wg.Add(1)
	return nil
}

func (w *waitGroupSem) NewWorkerTry() bool {
	w.wg.Add(1)
	return true
}

func (w *waitGroupSem) DeferWorker() {
	w.wg.Done()
}

func (w *waitGroupSem) WaitAll() error {
	done := make(chan struct{})

	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-w.Context.Done():
		return w.Context.Err()
	}
}

func (w *waitGroupSem) Weighted() int64 {
	return -1
}

func (w *waitGroupSem) DeferMain() {
	w.cancel()
}

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

// Package sem provides a worker-slot semaphore used to bound the number of
// simultaneous connections or goroutines a component will service at once.
// A non-negative weight is backed by golang.org/x/sync/semaphore; a negative
// weight degrades to an unlimited sync.WaitGroup-based counter.
package sem

import (
	"context"
	"runtime"
)

// Semaphore is a context.Context whose lifetime bounds the slots it hands
// out: cancelling it (via DeferMain) releases every blocked acquisition.
type Semaphore interface {
	context.Context

	// New creates a sibling semaphore with the same weight, whose context
	// is a child of this one.
	New() Semaphore

	// NewWorker blocks until a slot is available or the context is done.
	NewWorker() error
	// NewWorkerTry acquires a slot without blocking, returning false if none
	// is immediately available.
	NewWorkerTry() bool
	// DeferWorker releases a slot acquired by NewWorker or NewWorkerTry.
	DeferWorker()

	// WaitAll blocks until every outstanding worker has been released.
	WaitAll() error
	// Weighted returns the configured slot count, or -1 when unlimited.
	Weighted() int64

	// DeferMain cancels the semaphore's context, unblocking any pending
	// acquisitions with context.Canceled. Safe to call more than once.
	DeferMain()
}

// MaxSimultaneous returns the default slot count used when New is called
// with nbrSimultaneous == 0: the runtime's GOMAXPROCS value.
func MaxSimultaneous() int {
	return runtime.GOMAXPROCS(0)
}

// SetSimultaneous clamps n to the [1, MaxSimultaneous()] range, returning
// MaxSimultaneous() itself when n is out of bounds.
func SetSimultaneous(n int) int64 {
	max := int64(MaxSimultaneous())

	if n < 1 {
		return max
	}
	if int64(n) > max {
		return max
	}
	return int64(n)
}

// New creates a Semaphore bound to ctx.
//
//   - nbrSimultaneous > 0 creates a weighted semaphore with that many slots.
//   - nbrSimultaneous == 0 uses MaxSimultaneous() slots.
//   - nbrSimultaneous < 0 creates an unlimited WaitGroup-based semaphore.
func New(ctx context.Context, nbrSimultaneous int) Semaphore {
	if nbrSimultaneous < 0 {
		return newWaitGroup(ctx)
	}

	n := int64(nbrSimultaneous)
	if n == 0 {
		n = int64(MaxSimultaneous())
	}

	return newWeighted(ctx, n)
}

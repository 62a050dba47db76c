/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package correlator implements the synchronous request/response
// correlator (spec §4.6): a single mutex-guarded map of conversation id to a one-shot
// channel that a receiver loop publishes into when a matching sync
// response arrives, and that a SendAndWait caller blocks on.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	liberr "github.com/sabouaram/tcpmsg/errors"
)

// MinTimeout is the smallest timeout SendAndWait accepts (spec §4.6 step 1,
// §8 "SendAndWait(timeoutMs) enforces timeoutMs >= 1000").
const MinTimeout = time.Second

// Response is the payload a receiver loop publishes once a sync response
// frame with a matching convGuid arrives.
type Response struct {
	Metadata map[string]any
	Payload  []byte
}

type waiter struct {
	ch     chan Response
	expiry time.Time
}

// Correlator tracks pending sync requests keyed by conversation GUID.
type Correlator struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]*waiter
}

// New returns an empty Correlator.
func New() *Correlator {
	return &Correlator{waiters: make(map[uuid.UUID]*waiter)}
}

// ValidateTimeout rejects a SendAndWait timeout shorter than MinTimeout.
func ValidateTimeout(d time.Duration) liberr.Error {
	if d < MinTimeout {
		return ErrorTimeoutTooShort.Error()
	}
	return nil
}

// subscribe registers a one-shot waiter for convGUID, expiring at exp.
func (c *Correlator) subscribe(convGUID uuid.UUID, exp time.Time) (*waiter, liberr.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.waiters[convGUID]; exists {
		return nil, ErrorAlreadySubscribed.Error()
	}

	w := &waiter{ch: make(chan Response, 1), expiry: exp}
	c.waiters[convGUID] = w
	return w, nil
}

func (c *Correlator) unsubscribe(convGUID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, convGUID)
}

// Publish delivers resp to the waiter subscribed under convGUID, if any
// and not expired. It reports whether a live waiter received it; a sync
// response arriving after its exp, or with no matching subscriber, is
// dropped (spec §4.6 "expired responses received by the originator are
// likewise dropped").
func (c *Correlator) Publish(convGUID uuid.UUID, resp Response) bool {
	c.mu.Lock()
	w, ok := c.waiters[convGUID]
	if ok {
		delete(c.waiters, convGUID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if time.Now().After(w.expiry) {
		return false
	}

	select {
	case w.ch <- resp:
		return true
	default:
		return false
	}
}

// SendAndWait implements spec §4.6 steps 2-6: it computes the expiration,
// asks send to build and transmit the correlated request under convGUID,
// then blocks until a response is published, the context is cancelled, or
// timeout elapses.
func (c *Correlator) SendAndWait(
	ctx context.Context,
	timeout time.Duration,
	send func(convGUID uuid.UUID, exp time.Time) liberr.Error,
) (Response, liberr.Error) {
	if e := ValidateTimeout(timeout); e != nil {
		return Response{}, e
	}

	convGUID := uuid.New()
	exp := time.Now().Add(timeout)

	w, e := c.subscribe(convGUID, exp)
	if e != nil {
		return Response{}, e
	}
	defer c.unsubscribe(convGUID)

	if e := send(convGUID, exp); e != nil {
		return Response{}, e
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-w.ch:
		return resp, nil
	case <-timer.C:
		return Response{}, ErrorTimeout.Error()
	case <-ctx.Done():
		return Response{}, ErrorTimeout.ErrorParent(ctx.Err())
	}
}

// Pending reports how many sync requests are currently awaiting a
// response, useful for diagnostics and tests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

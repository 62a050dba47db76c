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

package keepalive

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/tcpmsg/registry"
	"github.com/sabouaram/tcpmsg/runner/ticker"
	"github.com/sabouaram/tcpmsg/severity"
)

// ReaperTick is the fixed cadence of the server-side idle-client reaper
// (spec §4.9: "Server idle-client reaper runs at a 5-second tick").
const ReaperTick = 5 * time.Second

// DisconnectFunc is how the reaper tells its owner to tear down a client
// found idle past the configured threshold.
type DisconnectFunc func(ctx context.Context, guid uuid.UUID)

// NewReaper builds a ticker.Ticker that, every tickEvery, disconnects
// every client in reg whose LastSeen age exceeds maxIdle (spec §4.9, §8
// "Idle reaper"). Production callers pass ReaperTick; tests pass a
// shorter interval to exercise the same dispatch logic without waiting
// out the full 5 seconds. A non-positive maxIdle disables the reaper
// entirely (the returned ticker simply does nothing each tick).
func NewReaper(reg *registry.Registry, tickEvery, maxIdle time.Duration, disconnect DisconnectFunc, eventFunc severity.EventFunc) ticker.Ticker {
	return ticker.New(tickEvery, func(ctx context.Context, _ *time.Ticker) error {
		if maxIdle <= 0 || disconnect == nil {
			return nil
		}

		reg.EachIdleOlderThan(maxIdle, func(guid uuid.UUID, rec *registry.Record) {
			reg.MarkTimedOut(guid)
			severity.Emit(eventFunc, severity.Info, "keepalive: reaping idle client "+guid.String(), nil)
			disconnect(ctx, guid)
		})

		return nil
	})
}

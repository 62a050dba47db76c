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

	"github.com/sabouaram/tcpmsg/runner/ticker"
	"github.com/sabouaram/tcpmsg/severity"
)

// NewWatchdog builds a ticker.Ticker that polls every evalInterval and
// invokes onIdle once lastActivity() is older than idleTimeout (spec
// §4.9: "Client idle-server watchdog polls at
// IdleServerEvaluationIntervalMs; if LastActivity is older than
// IdleServerTimeoutMs... the client disconnects itself with reason
// Timeout"). idleTimeout == 0 disables the watchdog.
func NewWatchdog(
	evalInterval time.Duration,
	idleTimeout time.Duration,
	lastActivity func() time.Time,
	onIdle func(ctx context.Context),
	eventFunc severity.EventFunc,
) ticker.Ticker {
	return ticker.New(evalInterval, func(ctx context.Context, _ *time.Ticker) error {
		if idleTimeout <= 0 || lastActivity == nil || onIdle == nil {
			return nil
		}

		if time.Since(lastActivity()) <= idleTimeout {
			return nil
		}

		severity.Emit(eventFunc, severity.Warn, "keepalive: server idle past timeout, disconnecting", nil)
		onIdle(ctx)
		return nil
	})
}

// NewAutoReconnect builds a ticker.Ticker that retries connect every
// interval, up to maxAttempts (spec §4.9, §12: AutoReconnectIntervalMs/
// AutoReconnectMaxAttempts, -1 meaning unlimited). It stops attempting
// once connect reports success or the attempt budget is exhausted; the
// ticker itself keeps running (a no-op tick) so a later Stop/Restart by
// the owner remains well-defined.
func NewAutoReconnect(
	interval time.Duration,
	maxAttempts int,
	isConnected func() bool,
	connect func(ctx context.Context) error,
	eventFunc severity.EventFunc,
) ticker.Ticker {
	attempts := 0

	return ticker.New(interval, func(ctx context.Context, _ *time.Ticker) error {
		if isConnected == nil || connect == nil || isConnected() {
			return nil
		}

		if maxAttempts >= 0 && attempts >= maxAttempts {
			return nil
		}

		attempts++
		severity.Emit(eventFunc, severity.Info, "keepalive: auto-reconnect attempt", nil)

		if err := connect(ctx); err != nil {
			severity.Emit(eventFunc, severity.Warn, "keepalive: auto-reconnect attempt failed", err)
			return nil
		}

		attempts = 0
		return nil
	})
}

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

// Package keepalive implements the Keepalive & Timeout Monitors component
// (spec §4.9): OS-level TCP keepalive tuning, the server-side idle-client
// reaper, and the client-side idle-server watchdog (plus the client's
// optional auto-reconnect timer, §12 supplemented feature).
package keepalive

import (
	"net"
	"time"

	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/severity"
)

// Config carries the OS-level TCP keepalive tunables from spec §6.2:
// EnableTcpKeepAlives, TcpKeepAliveTime, TcpKeepAliveInterval,
// TcpKeepAliveRetryCount.
type Config struct {
	Enable     bool
	Time       time.Duration
	Interval   time.Duration
	RetryCount int
}

// Apply configures OS-level TCP keepalive on conn per cfg. Only Time can
// be tuned everywhere Go's standard library runs (net.TCPConn); Interval
// and RetryCount additionally require platform syscalls and degrade
// silently with a Warn event where unsupported (spec §4.9: "unsupported
// platforms cause the feature to degrade silently with a warning").
func Apply(conn net.Conn, cfg Config, eventFunc severity.EventFunc) liberr.Error {
	if !cfg.Enable {
		return nil
	}

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		severity.Emit(eventFunc, severity.Warn, "keepalive: connection is not a *net.TCPConn, skipping", nil)
		return ErrorNotTCP.Error()
	}

	if err := tcp.SetKeepAlive(true); err != nil {
		severity.Emit(eventFunc, severity.Warn, "keepalive: SetKeepAlive failed", err)
		return ErrorUnsupported.ErrorParent(err)
	}

	if cfg.Time > 0 {
		if err := tcp.SetKeepAlivePeriod(cfg.Time); err != nil {
			severity.Emit(eventFunc, severity.Warn, "keepalive: SetKeepAlivePeriod failed", err)
		}
	}

	if e := applyPlatformTuning(tcp, cfg); e != nil {
		severity.Emit(eventFunc, severity.Warn, "keepalive: interval/retry tuning not supported on this platform", e)
	}

	return nil
}

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

//go:build unix

package keepalive

import (
	"net"

	"golang.org/x/sys/unix"
)

// applyPlatformTuning sets TCP_KEEPINTVL and TCP_KEEPCNT via the raw
// socket, which net.TCPConn.SetKeepAlivePeriod alone cannot reach. Linux
// and the BSDs (including Darwin) all expose these through
// golang.org/x/sys/unix under the same names.
func applyPlatformTuning(tcp *net.TCPConn, cfg Config) error {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if cfg.Interval > 0 {
			secs := int(cfg.Interval.Seconds())
			if secs < 1 {
				secs = 1
			}
			if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs); e != nil {
				opErr = e
				return
			}
		}

		if cfg.RetryCount > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.RetryCount); e != nil {
				opErr = e
				return
			}
		}
	})

	if ctrlErr != nil {
		return ctrlErr
	}
	return opErr
}

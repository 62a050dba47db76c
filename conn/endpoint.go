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

// Package conn implements the Connection Endpoint (spec §4.2): the single
// owner of one socket (raw or TLS), its write/read mutual-exclusion, and
// the per-connection cancellation signal every other component keys off
// of.
package conn

import (
	"context"
	"io"
	"net"
	"sync"

	libatm "github.com/sabouaram/tcpmsg/atomic"
	liberr "github.com/sabouaram/tcpmsg/errors"
	libsem "github.com/sabouaram/tcpmsg/semaphore/sem"
)

// DefaultStreamBufferSize is the default I/O chunk size (spec §6.2
// StreamBufferSize, default 65536).
const DefaultStreamBufferSize = 65536

// Endpoint owns exactly one net.Conn (optionally TLS-wrapped) and
// enforces spec §3/§5's invariant that at most one write and one
// structural read may be in flight at a time.
type Endpoint struct {
	raw    net.Conn
	tls    net.Conn // non-nil when this connection is TLS-wrapped
	remote string

	writeLock libsem.Semaphore
	readLock  libsem.Semaphore

	bufSize int

	ctx    context.Context
	cancel context.CancelFunc

	closed libatm.Value[bool]
	once   sync.Once
}

// New wraps raw (and, if non-nil, its TLS layer tls) into an Endpoint
// bound to a child of parent. Cancelling parent or calling Close tears
// down everything blocked on this connection's locks.
func New(parent context.Context, raw net.Conn, tlsConn net.Conn, bufSize int) *Endpoint {
	if bufSize <= 0 {
		bufSize = DefaultStreamBufferSize
	}

	ctx, cancel := context.WithCancel(parent)

	remote := ""
	if raw != nil {
		remote = raw.RemoteAddr().String()
	}

	e := &Endpoint{
		raw:       raw,
		tls:       tlsConn,
		remote:    remote,
		writeLock: libsem.New(ctx, 1),
		readLock:  libsem.New(ctx, 1),
		bufSize:   bufSize,
		ctx:       ctx,
		cancel:    cancel,
		closed:    libatm.NewValue[bool](),
	}

	return e
}

// Stream returns the active io.ReadWriter for this connection: the
// TLS stream if one was negotiated, otherwise the raw socket.
func (e *Endpoint) Stream() io.ReadWriter {
	if e.tls != nil {
		return e.tls
	}
	return e.raw
}

// Conn returns the underlying net.Conn actually carrying bytes (the TLS
// conn when present), for operations that need net.Conn specifically
// (deadlines, keepalive tuning on the raw socket below it).
func (e *Endpoint) Conn() net.Conn {
	if e.tls != nil {
		return e.tls
	}
	return e.raw
}

// RawConn returns the underlying, never-TLS-wrapped socket, used by the
// keepalive tuner which must reach the OS-level TCP socket regardless of
// whether TLS is layered on top.
func (e *Endpoint) RawConn() net.Conn {
	return e.raw
}

// RemoteAddr returns the peer's address string, captured at construction.
func (e *Endpoint) RemoteAddr() string {
	return e.remote
}

// BufferSize returns the configured StreamBufferSize for this connection.
func (e *Endpoint) BufferSize() int {
	return e.bufSize
}

// Context returns the connection-scoped context; it is cancelled by
// Close or by the parent context ending.
func (e *Endpoint) Context() context.Context {
	return e.ctx
}

// Done reports the connection's cancellation channel (spec §5: "a
// per-connection cancellation signal fires on dispose, disconnect, or
// idle-timeout").
func (e *Endpoint) Done() <-chan struct{} {
	return e.ctx.Done()
}

// IsClosed reports whether Close has already run.
func (e *Endpoint) IsClosed() bool {
	return e.closed.Load()
}

// AcquireWrite blocks until the write lock is free or the connection is
// cancelled.
func (e *Endpoint) AcquireWrite() liberr.Error {
	if e.IsClosed() {
		return ErrorClosed.Error()
	}
	if err := e.writeLock.NewWorker(); err != nil {
		return ErrorAcquireWrite.ErrorParent(err)
	}
	return nil
}

// ReleaseWrite releases a lock acquired by AcquireWrite.
func (e *Endpoint) ReleaseWrite() {
	e.writeLock.DeferWorker()
}

// AcquireRead blocks until the read lock is free or the connection is
// cancelled.
func (e *Endpoint) AcquireRead() liberr.Error {
	if e.IsClosed() {
		return ErrorClosed.Error()
	}
	if err := e.readLock.NewWorker(); err != nil {
		return ErrorAcquireRead.ErrorParent(err)
	}
	return nil
}

// ReleaseRead releases a lock acquired by AcquireRead.
func (e *Endpoint) ReleaseRead() {
	e.readLock.DeferWorker()
}

// Close cancels the connection's context (unblocking anything waiting on
// its locks or Done()) and closes the underlying socket. Safe to call
// more than once; only the first call has effect.
func (e *Endpoint) Close() error {
	var err error

	e.once.Do(func() {
		e.closed.Store(true)
		e.cancel()

		if e.tls != nil {
			_ = e.tls.Close()
		}
		if e.raw != nil {
			err = e.raw.Close()
		}
	})

	return err
}

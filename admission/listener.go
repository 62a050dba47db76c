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

// Package admission implements Admission & Listener (spec §4.8): IP
// allow/deny filtering, the MaxConnections gate, and server-side TLS
// bring-up through the certificates package.
package admission

import (
	"context"
	"net"
	"strings"

	"github.com/sabouaram/tcpmsg/certificates"
	"github.com/sabouaram/tcpmsg/conn"
	liberr "github.com/sabouaram/tcpmsg/errors"
	libsem "github.com/sabouaram/tcpmsg/semaphore/sem"
	"github.com/sabouaram/tcpmsg/severity"
)

// IPFilter evaluates a remote address against an allow-list and a
// block-list. An empty PermittedIPs allows everyone through to the
// block-list check; a non-empty PermittedIPs takes precedence and
// excludes everything not listed (spec §4.8).
type IPFilter struct {
	PermittedIPs []string
	BlockedIPs   []string
}

// Allow reports whether remote (a "host:port" or bare host string) may
// connect.
func (f IPFilter) Allow(remote string) bool {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	ip := net.ParseIP(host)

	if len(f.PermittedIPs) > 0 {
		if !matchesAny(ip, host, f.PermittedIPs) {
			return false
		}
	}

	if matchesAny(ip, host, f.BlockedIPs) {
		return false
	}

	return true
}

func matchesAny(ip net.IP, host string, list []string) bool {
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == host {
			return true
		}
		if ip == nil {
			continue
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if cidr.Contains(ip) {
				return true
			}
			continue
		}
		if listIP := net.ParseIP(entry); listIP != nil && listIP.Equal(ip) {
			return true
		}
	}
	return false
}

// Config parameterizes a Listener.
type Config struct {
	MaxConnections    int
	Filter            IPFilter
	TLS               certificates.TLSConfig
	RequireMutualAuth bool
	VerifyPeer        func(verified [][]byte) error
	StreamBufferSize  int
	EventFunc         severity.EventFunc
}

// Listener wraps a net.Listener with the admission policy described in
// spec §4.8, handing callers a ready conn.Endpoint per accepted
// connection.
type Listener struct {
	ln   net.Listener
	cfg  Config
	gate libsem.Semaphore
}

// New wraps ln with the admission policy in cfg. parent bounds the
// lifetime of the MaxConnections gate; cancelling it unblocks any
// goroutine waiting for a free slot.
func New(parent context.Context, ln net.Listener, cfg Config) *Listener {
	n := cfg.MaxConnections
	if n <= 0 {
		n = -1
	}
	return &Listener{
		ln:   ln,
		cfg:  cfg,
		gate: libsem.New(parent, n),
	}
}

// Accept blocks until a connection slot is available, then accepts,
// filters, and (if configured) TLS-authenticates the next connection. A
// connection rejected by the IP filter or TLS checks is closed and the
// loop retries with the next inbound connection, without ever exceeding
// MaxConnections in flight.
func (l *Listener) Accept(ctx context.Context) (*conn.Endpoint, liberr.Error) {
	for {
		if err := l.gate.NewWorker(); err != nil {
			return nil, ErrorListenerClosed.ErrorParent(err)
		}

		raw, err := l.ln.Accept()
		if err != nil {
			l.gate.DeferWorker()
			return nil, ErrorListenerClosed.ErrorParent(err)
		}

		if !l.cfg.Filter.Allow(raw.RemoteAddr().String()) {
			severity.Emit(l.cfg.EventFunc, severity.Warn, "admission: rejected remote address "+raw.RemoteAddr().String(), nil)
			_ = raw.Close()
			l.gate.DeferWorker()
			continue
		}

		tlsConn, e := l.bringUpTLS(raw)
		if e != nil {
			severity.Emit(l.cfg.EventFunc, severity.Error, "admission: TLS bring-up failed", e)
			_ = raw.Close()
			l.gate.DeferWorker()
			continue
		}

		ep := conn.New(ctx, raw, tlsConn, l.cfg.StreamBufferSize)
		return ep, nil
	}
}

// Release returns a connection slot to the gate; callers invoke this
// when a connection accepted via Accept finally disconnects.
func (l *Listener) Release() {
	l.gate.DeferWorker()
}

// Close closes the underlying listener and unblocks any goroutine
// waiting on the MaxConnections gate.
func (l *Listener) Close() error {
	l.gate.DeferMain()
	return l.ln.Close()
}

func (l *Listener) bringUpTLS(raw net.Conn) (net.Conn, liberr.Error) {
	if l.cfg.TLS == nil {
		return nil, nil
	}

	tlsConn := tlsServerConn(raw, l.cfg.TLS)
	if e := tlsHandshake(tlsConn); e != nil {
		return nil, e
	}

	state := tlsConnectionState(tlsConn)
	if !state.HandshakeComplete {
		return nil, ErrorNotEncrypted.Error()
	}

	if l.cfg.RequireMutualAuth && len(state.PeerCertificates) == 0 {
		return nil, ErrorNotMutuallyAuthenticated.Error()
	}

	if l.cfg.VerifyPeer != nil {
		certs := make([][]byte, len(state.PeerCertificates))
		for i, c := range state.PeerCertificates {
			certs[i] = c.Raw
		}
		if err := l.cfg.VerifyPeer(certs); err != nil {
			return nil, ErrorNotMutuallyAuthenticated.ErrorParent(err)
		}
	}

	return tlsConn, nil
}

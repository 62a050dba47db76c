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

// Package client implements the client-side public surface (spec §6.2,
// §6.3): Connect/Disconnect/Authenticate lifecycle, the receiver loop
// wired to the caller's handlers, and the Send operations. It also wires
// the idle-server watchdog and the auto-reconnect supplemented feature
// (spec §4.9, §12) on top of the adapted runner/ticker package.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/tcpmsg/conn"
	"github.com/sabouaram/tcpmsg/correlator"
	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/keepalive"
	"github.com/sabouaram/tcpmsg/receiver"
	"github.com/sabouaram/tcpmsg/runner/ticker"
	"github.com/sabouaram/tcpmsg/sender"
	"github.com/sabouaram/tcpmsg/severity"
	"github.com/sabouaram/tcpmsg/stats"
	"github.com/sabouaram/tcpmsg/wire"
)

// MessageHandler receives a fully-buffered message from the server.
type MessageHandler func(ctx context.Context, meta map[string]any, payload []byte)

// StreamHandler receives a payload from the server as a reader (spec
// §4.4 proxied-stream delivery).
type StreamHandler func(ctx context.Context, meta map[string]any, length int, payload io.ReadCloser)

// SyncRequestHandler answers a sync request from the server.
type SyncRequestHandler func(ctx context.Context, meta map[string]any, payload []byte) (respMeta map[string]any, respPayload []byte, err error)

// Handlers bundles every event callback the public surface exposes (spec
// §6.3 Client events). Message and Stream are mutually exclusive.
type Handlers struct {
	Message     MessageHandler
	Stream      StreamHandler
	SyncRequest SyncRequestHandler

	OnServerConnected         func()
	OnServerDisconnected      func(reason wire.DisconnectReason)
	OnAuthenticationSucceeded func()
	OnAuthenticationFailure   func()
	OnExceptionEncountered    func(err error)
}

func (h Handlers) validate() liberr.Error {
	if h.Message == nil && h.Stream == nil {
		return ErrorInvalidHandlers.Error()
	}
	if h.Message != nil && h.Stream != nil {
		return ErrorInvalidHandlers.Error()
	}
	return nil
}

// Client is a single-connection client facade (spec §6.2).
type Client struct {
	cfg Config
	h   Handlers

	corr *correlator.Correlator
	st   *stats.Stats

	mu       sync.Mutex
	ep       *conn.Endpoint
	cancel   context.CancelFunc
	done     chan struct{}
	disposed bool

	connected    atomic.Bool
	lastActivity atomic.Int64

	presharedKey atomic.Pointer[[]byte]

	watchdog ticker.Ticker
	reconn   ticker.Ticker
}

// New validates cfg and h and returns a Client ready for Connect.
func New(cfg Config, h Handlers) (*Client, liberr.Error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	if e := h.validate(); e != nil {
		return nil, e
	}

	c := &Client{
		cfg:  cfg,
		h:    h,
		corr: correlator.New(),
		st:   stats.New(),
	}
	c.presharedKey.Store(&cfg.PresharedKey)
	c.lastActivity.Store(time.Now().UnixNano())

	if cfg.AutoReconnectInterval.Time() > 0 {
		connect := func(ctx context.Context) error {
			if e := c.Connect(ctx); e != nil {
				return e
			}
			return nil
		}
		c.reconn = keepalive.NewAutoReconnect(cfg.AutoReconnectInterval.Time(), cfg.AutoReconnectMaxAttempts, c.connected.Load, connect, cfg.EventFunc)
	}

	return c, nil
}

// Connect dials the server, optionally over TLS, and starts the receiver
// loop in a background goroutine (spec §6.2 Connect).
func (c *Client) Connect(ctx context.Context) liberr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrorDisposed.Error()
	}
	if c.connected.Load() {
		return ErrorAlreadyConnected.Error()
	}

	raw, err := c.cfg.dialer().DialContext(ctx, "tcp", c.cfg.ServerAddress)
	if err != nil {
		return ErrorDial.ErrorParent(err)
	}

	if c.cfg.NoDelay {
		if tcp, ok := raw.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
	}
	if c.cfg.Keepalive.Enable {
		_ = keepalive.Apply(raw, c.cfg.Keepalive, c.cfg.EventFunc)
	}

	var tlsConn net.Conn
	if tc := c.cfg.tlsConfig(); tc != nil {
		tlsConn = tls.Client(raw, tc)
		if hsErr := tlsConn.(*tls.Conn).HandshakeContext(ctx); hsErr != nil {
			_ = raw.Close()
			return ErrorDial.ErrorParent(hsErr)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	ep := conn.New(runCtx, raw, tlsConn, c.cfg.StreamBufferSize)

	c.ep = ep
	c.cancel = cancel
	c.done = make(chan struct{})
	c.connected.Store(true)
	c.st.IncConnectionsTotal()
	c.touch()

	severity.Emit(c.cfg.EventFunc, severity.Info, "client: connected to "+c.cfg.ServerAddress, nil)
	if c.h.OnServerConnected != nil {
		c.h.OnServerConnected()
	}

	go c.run(runCtx, ep, c.done)

	if c.cfg.IdleServerEvaluationInterval.Time() > 0 {
		c.watchdog = keepalive.NewWatchdog(c.cfg.IdleServerEvaluationInterval.Time(), c.cfg.IdleServerTimeout.Time(), c.lastActivityTime, c.disconnectIdle, c.cfg.EventFunc)
		_ = c.watchdog.Start(ctx)
	}
	if c.reconn != nil {
		_ = c.reconn.Start(ctx)
	}

	return nil
}

func (c *Client) run(ctx context.Context, ep *conn.Endpoint, done chan struct{}) {
	defer close(done)

	key := func() []byte {
		if p := c.presharedKey.Load(); p != nil {
			return *p
		}
		return nil
	}

	reason := receiver.Run(ctx, ep, c.corr, c.st, receiver.Config{
		Role:                 receiver.RoleClient,
		MaxProxiedStreamSize: c.cfg.MaxProxiedStreamSize,
		EventFunc:            c.cfg.EventFunc,
	}, receiver.Handlers{
		Message: func(ctx context.Context, meta map[string]any, payload []byte) {
			c.touch()
			if c.h.Message != nil {
				c.h.Message(ctx, meta, payload)
			}
		},
		Stream: func(ctx context.Context, meta map[string]any, length int, payload io.ReadCloser) {
			c.touch()
			if c.h.Stream != nil {
				c.h.Stream(ctx, meta, length, payload)
			}
		},
		SyncRequest: func(ctx context.Context, meta map[string]any, payload []byte) (map[string]any, []byte, error) {
			c.touch()
			if c.h.SyncRequest == nil {
				return nil, nil, nil
			}
			return c.h.SyncRequest(ctx, meta, payload)
		},
		AuthRequested: func(context.Context) []byte {
			return key()
		},
		OnAuthSuccess: func() {
			if c.h.OnAuthenticationSucceeded != nil {
				c.h.OnAuthenticationSucceeded()
			}
		},
		OnAuthFailure: func() {
			if c.h.OnAuthenticationFailure != nil {
				c.h.OnAuthenticationFailure()
			}
		},
		OnExceptionEncountered: func(err error) {
			if c.h.OnExceptionEncountered != nil {
				c.h.OnExceptionEncountered(err)
			}
		},
		OnActivity: c.touch,
	})

	c.mu.Lock()
	c.connected.Store(false)
	c.mu.Unlock()

	severity.Emit(c.cfg.EventFunc, severity.Info, "client: disconnected from "+c.cfg.ServerAddress, nil)
	if c.h.OnServerDisconnected != nil {
		c.h.OnServerDisconnected(reason)
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) lastActivityTime() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) disconnectIdle(ctx context.Context) {
	_ = c.Disconnect(ctx, false)
}

// Authenticate sets the preshared key used to answer the server's next
// AuthRequired challenge (spec §6.2 Authenticate(presharedKey)).
func (c *Client) Authenticate(presharedKey []byte) {
	key := append([]byte(nil), presharedKey...)
	c.presharedKey.Store(&key)
}

// Disconnect closes the connection, optionally notifying the server first
// (spec §6.2 Disconnect(sendNotice=true)), and waits for the receiver loop
// to drain before returning.
func (c *Client) Disconnect(ctx context.Context, sendNotice bool) liberr.Error {
	c.mu.Lock()
	if !c.connected.Load() || c.ep == nil {
		c.mu.Unlock()
		return nil
	}

	if sendNotice {
		_ = sender.SendInternal(c.ep, wire.Header{Status: wire.StatusShutdown, TS: wire.Now()}, nil, c.st)
	}

	if c.watchdog != nil {
		_ = c.watchdog.Stop(context.Background())
	}

	err := c.ep.Close()
	c.connected.Store(false)
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return ErrorDial.IfError(err)
}

// Dispose disconnects and permanently prevents further Connect calls.
func (c *Client) Dispose(ctx context.Context) liberr.Error {
	e := c.Disconnect(ctx, true)

	c.mu.Lock()
	c.disposed = true
	reconn := c.reconn
	c.mu.Unlock()

	if reconn != nil {
		_ = reconn.Stop(ctx)
	}

	return e
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() stats.Snapshot {
	return c.st.Snapshot()
}

// SendAsync sends payload to the server as a plain message (spec §6.2
// SendAsync).
func (c *Client) SendAsync(payload []byte, meta map[string]any) liberr.Error {
	return c.SendAsyncFrom(payload, 0, meta)
}

// SendAsyncFrom sends payload[start:] to the server, validating the
// offset bound (spec §12 supplemented "send with offset").
func (c *Client) SendAsyncFrom(payload []byte, start int, meta map[string]any) liberr.Error {
	if start < 0 || start > len(payload) {
		return ErrorInvalidOffset.Error()
	}

	ep, e := c.activeEndpoint()
	if e != nil {
		return e
	}

	body := payload[start:]
	header := wire.Header{Len: len(body), Status: wire.StatusNormal, MD: meta, TS: wire.Now()}
	return sender.SendInternal(ep, header, bytes.NewReader(body), c.st)
}

// SendAndWaitAsync sends payload as a sync request and blocks for the
// correlated response (spec §6.2 SendAndWaitAsync, §4.6).
func (c *Client) SendAndWaitAsync(ctx context.Context, timeoutMs int, payload []byte, meta map[string]any) (correlator.Response, liberr.Error) {
	ep, e := c.activeEndpoint()
	if e != nil {
		return correlator.Response{}, e
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond

	return c.corr.SendAndWait(ctx, timeout, func(convGUID uuid.UUID, exp time.Time) liberr.Error {
		wt := wire.WireTime(exp)
		header := wire.Header{
			Len:      len(payload),
			Status:   wire.StatusNormal,
			MD:       meta,
			SyncReq:  true,
			TS:       wire.Now(),
			Exp:      &wt,
			ConvGUID: convGUID,
		}
		return sender.SendInternal(ep, header, bytes.NewReader(payload), c.st)
	})
}

func (c *Client) activeEndpoint() (*conn.Endpoint, liberr.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.Load() || c.ep == nil {
		return nil, ErrorNotConnected.Error()
	}
	return c.ep, nil
}

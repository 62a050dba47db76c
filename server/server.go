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

// Package server implements the server-side public surface (spec §6.2,
// §6.3): Start/Stop/Dispose lifecycle, the accept loop that wires a new
// connection through admission, PSK authentication, and the receiver
// loop, and the Send/Disconnect/ListClients operations a caller drives a
// running server with.
package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/tcpmsg/admission"
	"github.com/sabouaram/tcpmsg/conn"
	"github.com/sabouaram/tcpmsg/correlator"
	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/keepalive"
	"github.com/sabouaram/tcpmsg/pskauth"
	"github.com/sabouaram/tcpmsg/receiver"
	"github.com/sabouaram/tcpmsg/registry"
	"github.com/sabouaram/tcpmsg/runner/startStop"
	"github.com/sabouaram/tcpmsg/runner/ticker"
	"github.com/sabouaram/tcpmsg/sender"
	"github.com/sabouaram/tcpmsg/severity"
	"github.com/sabouaram/tcpmsg/stats"
	"github.com/sabouaram/tcpmsg/wire"
)

// MessageHandler receives a fully-buffered message from guid.
type MessageHandler func(ctx context.Context, guid uuid.UUID, meta map[string]any, payload []byte)

// StreamHandler receives a payload from guid as a reader (spec §4.4
// proxied-stream delivery).
type StreamHandler func(ctx context.Context, guid uuid.UUID, meta map[string]any, length int, payload io.ReadCloser)

// SyncRequestHandler answers a sync request from guid.
type SyncRequestHandler func(ctx context.Context, guid uuid.UUID, meta map[string]any, payload []byte) (respMeta map[string]any, respPayload []byte, err error)

// Handlers bundles every event callback the public surface exposes (spec
// §6.3 Server events). Message and Stream are mutually exclusive, same
// rule as receiver.Handlers.
type Handlers struct {
	Message     MessageHandler
	Stream      StreamHandler
	SyncRequest SyncRequestHandler

	OnClientConnected         func(guid uuid.UUID, remote string)
	OnClientDisconnected      func(guid uuid.UUID, reason wire.DisconnectReason)
	OnAuthenticationSucceeded func(guid uuid.UUID)
	OnServerStarted           func()
	OnServerStopped           func()
	OnExceptionEncountered    func(guid uuid.UUID, err error)
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

// Server is the accept-loop-driven facade spec §6.2 describes.
type Server struct {
	cfg Config
	h   Handlers

	reg  *registry.Registry
	corr *correlator.Correlator
	st   *stats.Stats

	mu       sync.Mutex
	ln       net.Listener
	listener *admission.Listener
	lifecy   startStop.StartStop
	reaper   ticker.Ticker
	disposed bool
}

// New validates cfg and h and returns a Server ready for Start.
func New(cfg Config, h Handlers) (*Server, liberr.Error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	if e := h.validate(); e != nil {
		return nil, e
	}

	s := &Server{
		cfg:  cfg,
		h:    h,
		reg:  registry.New(),
		corr: correlator.New(),
		st:   stats.New(),
	}
	s.lifecy = startStop.New(s.runAccept, s.stopAccept)
	return s, nil
}

// Start binds the listen address and begins accepting connections; it
// returns once the listener is bound, not once the server stops (spec
// §6.2 Start).
func (s *Server) Start(ctx context.Context) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrorDisposed.Error()
	}
	if s.lifecy.IsRunning() {
		return ErrorAlreadyRunning.Error()
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return ErrorListen.ErrorParent(err)
	}
	s.ln = ln

	s.listener = admission.New(ctx, ln, admission.Config{
		MaxConnections:    s.cfg.MaxConnections,
		Filter:            admission.IPFilter{PermittedIPs: s.cfg.PermittedIPs, BlockedIPs: s.cfg.BlockedIPs},
		TLS:               s.cfg.resolveTLS(),
		RequireMutualAuth: s.cfg.MutuallyAuthenticate,
		StreamBufferSize:  s.cfg.StreamBufferSize,
		EventFunc:         s.cfg.EventFunc,
	})

	s.reaper = keepalive.NewReaper(s.reg, keepalive.ReaperTick, s.cfg.IdleClientTimeout.Time(), s.disconnectIdle, s.cfg.EventFunc)

	if e := s.lifecy.Start(ctx); e != nil {
		return ErrorListen.ErrorParent(e)
	}
	_ = s.reaper.Start(ctx)

	severity.Emit(s.cfg.EventFunc, severity.Info, "server: listening on "+s.cfg.ListenAddress, nil)
	if s.h.OnServerStarted != nil {
		s.h.OnServerStarted()
	}

	return nil
}

// Stop closes the listener and every active connection, without marking
// the server disposed; Start may be called again afterward.
func (s *Server) Stop(ctx context.Context) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) liberr.Error {
	if !s.lifecy.IsRunning() {
		return nil
	}

	if s.reaper != nil {
		_ = s.reaper.Stop(ctx)
	}

	s.disconnectAllLocked(ctx, wire.StatusShutdown)

	if e := s.lifecy.Stop(ctx); e != nil {
		return ErrorNotRunning.ErrorParent(e)
	}

	severity.Emit(s.cfg.EventFunc, severity.Info, "server: stopped", nil)
	if s.h.OnServerStopped != nil {
		s.h.OnServerStopped()
	}

	return nil
}

// Dispose stops the server permanently; a disposed Server cannot Start again.
func (s *Server) Dispose(ctx context.Context) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.stopLocked(ctx)
	s.disposed = true
	return e
}

// runAccept is the startStop start function: it loops Accept until ctx
// is cancelled or the listener is closed.
func (s *Server) runAccept(ctx context.Context) error {
	for {
		ep, e := s.listener.Accept(ctx)
		if e != nil {
			if ctx.Err() != nil {
				return nil
			}
			return e
		}

		go s.serve(ctx, ep)
	}
}

func (s *Server) stopAccept(_ context.Context) error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// serve is one accepted connection's lifetime: registration, optional PSK
// challenge, the receiver loop, and teardown.
func (s *Server) serve(ctx context.Context, ep *conn.Endpoint) {
	requireAuth := len(s.cfg.PresharedKey) > 0

	guid := uuid.New()
	rec := &registry.Record{GUID: guid, Remote: ep.RemoteAddr(), Endpoint: ep, ConnectedAt: wire.Now().Time()}
	s.reg.Add(rec, requireAuth)
	s.st.IncConnectionsTotal()

	if s.cfg.NoDelay {
		if tcp, ok := ep.RawConn().(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
	}
	if s.cfg.Keepalive.Enable {
		_ = keepalive.Apply(ep.RawConn(), s.cfg.Keepalive, s.cfg.EventFunc)
	}

	severity.Emit(s.cfg.EventFunc, severity.Info, "server: client connected "+guid.String(), nil)
	if s.h.OnClientConnected != nil {
		s.h.OnClientConnected(guid, ep.RemoteAddr())
	}

	if requireAuth {
		if se := sender.SendInternal(ep, pskauth.RequestHeader(), nil, s.st); se != nil {
			s.teardown(guid, ep, wire.ReasonAuthFailure)
			return
		}
	}

	reason := receiver.Run(ctx, ep, s.corr, s.st, receiver.Config{
		Role:                 receiver.RoleServer,
		RequireAuth:          requireAuth,
		PresharedKey:         s.cfg.PresharedKey,
		MaxProxiedStreamSize: s.cfg.MaxProxiedStreamSize,
		EventFunc:            s.cfg.EventFunc,
	}, receiver.Handlers{
		Message: func(ctx context.Context, meta map[string]any, payload []byte) {
			if s.h.Message != nil {
				s.h.Message(ctx, guid, meta, payload)
			}
		},
		Stream: func(ctx context.Context, meta map[string]any, length int, payload io.ReadCloser) {
			if s.h.Stream != nil {
				s.h.Stream(ctx, guid, meta, length, payload)
			}
		},
		SyncRequest: func(ctx context.Context, meta map[string]any, payload []byte) (map[string]any, []byte, error) {
			if s.h.SyncRequest == nil {
				return nil, nil, nil
			}
			return s.h.SyncRequest(ctx, guid, meta, payload)
		},
		OnAuthSuccess: func() {
			s.reg.PromoteAuthenticated(guid)
			if s.h.OnAuthenticationSucceeded != nil {
				s.h.OnAuthenticationSucceeded(guid)
			}
		},
		OnRegisterClient: func(newGUID uuid.UUID) liberr.Error {
			if newGUID == uuid.Nil {
				return nil
			}
			old := guid
			if e := s.reg.Replace(old, newGUID); e != nil {
				return e
			}
			guid = newGUID
			return nil
		},
		OnExceptionEncountered: func(err error) {
			if s.h.OnExceptionEncountered != nil {
				s.h.OnExceptionEncountered(guid, err)
			}
		},
		OnActivity: func() {
			s.reg.UpdateTimestamp(guid)
		},
	})

	s.teardown(guid, ep, reason)
}

func (s *Server) teardown(guid uuid.UUID, ep *conn.Endpoint, reason wire.DisconnectReason) {
	_, _ = s.reg.Remove(guid)
	_ = ep.Close()
	s.listener.Release()

	severity.Emit(s.cfg.EventFunc, severity.Info, "server: client disconnected "+guid.String(), nil)
	if s.h.OnClientDisconnected != nil {
		s.h.OnClientDisconnected(guid, reason)
	}
}

func (s *Server) disconnectIdle(ctx context.Context, guid uuid.UUID) {
	_ = s.DisconnectClientAsync(ctx, guid, wire.StatusTimeout, true)
}

func (s *Server) disconnectAllLocked(ctx context.Context, status wire.Status) {
	for _, snap := range s.reg.ListClients() {
		_ = s.DisconnectClientAsync(ctx, snap.GUID, status, true)
	}
}

// DisconnectClientAsync sends a status notice (if sendNotice) then closes
// guid's connection (spec §6.2 DisconnectClientAsync, default
// status=Removed, sendNotice=true).
func (s *Server) DisconnectClientAsync(_ context.Context, guid uuid.UUID, status wire.Status, sendNotice bool) liberr.Error {
	rec, ok := s.reg.Get(guid)
	if !ok {
		return ErrorUnknownClient.Error()
	}

	if sendNotice {
		_ = sender.SendInternal(rec.Endpoint, wire.Header{Status: status, TS: wire.Now()}, nil, s.st)
	}

	if status == wire.StatusRemoved {
		s.reg.MarkKicked(guid)
	}

	return rec.Endpoint.Close()
}

// DisconnectClientsAsync disconnects every active client with status
// (spec §6.2 DisconnectClientsAsync, default Shutdown).
func (s *Server) DisconnectClientsAsync(ctx context.Context, status wire.Status) {
	s.disconnectAllLocked(ctx, status)
}

// IsClientConnected reports whether guid is currently active.
func (s *Server) IsClientConnected(guid uuid.UUID) bool {
	return s.reg.Exists(guid)
}

// ListClients returns a snapshot of every active client (spec §12
// supplemented feature).
func (s *Server) ListClients() []registry.Snapshot {
	return s.reg.ListClients()
}

// Stats returns a snapshot of the server's counters.
func (s *Server) Stats() stats.Snapshot {
	return s.st.Snapshot()
}

// Addr returns the actual bound listen address, useful when ListenAddress
// requested an ephemeral port (":0").
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// SendAsync sends payload to guid as a plain message (spec §6.2 SendAsync).
func (s *Server) SendAsync(guid uuid.UUID, payload []byte, meta map[string]any) liberr.Error {
	return s.SendAsyncFrom(guid, payload, 0, meta)
}

// SendAsyncFrom sends payload[start:] to guid, validating the offset
// bound (spec §12 supplemented "send with offset").
func (s *Server) SendAsyncFrom(guid uuid.UUID, payload []byte, start int, meta map[string]any) liberr.Error {
	if start < 0 || start > len(payload) {
		return ErrorInvalidOffset.Error()
	}
	rec, ok := s.reg.Get(guid)
	if !ok {
		return ErrorUnknownClient.Error()
	}

	body := payload[start:]
	header := wire.Header{Len: len(body), Status: wire.StatusNormal, MD: meta, TS: wire.Now()}
	return sender.SendInternal(rec.Endpoint, header, bytes.NewReader(body), s.st)
}

// SendAndWaitAsync sends payload to guid as a sync request and blocks for
// the correlated response (spec §6.2 SendAndWaitAsync, §4.6).
func (s *Server) SendAndWaitAsync(ctx context.Context, timeoutMs int, guid uuid.UUID, payload []byte, meta map[string]any) (correlator.Response, liberr.Error) {
	rec, ok := s.reg.Get(guid)
	if !ok {
		return correlator.Response{}, ErrorUnknownClient.Error()
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond

	return s.corr.SendAndWait(ctx, timeout, func(convGUID uuid.UUID, exp time.Time) liberr.Error {
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
		return sender.SendInternal(rec.Endpoint, header, bytes.NewReader(payload), s.st)
	})
}

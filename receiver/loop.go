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

// Package receiver implements the per-connection Receiver Loop (spec
// §4.4): decode one frame at a time, classify it, and dispatch to the
// authentication handler, the sync correlator, or the caller's message or
// stream handler, one task per connection on either side of the wire.
package receiver

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/tcpmsg/conn"
	"github.com/sabouaram/tcpmsg/correlator"
	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/ioutils"
	"github.com/sabouaram/tcpmsg/pskauth"
	"github.com/sabouaram/tcpmsg/sender"
	"github.com/sabouaram/tcpmsg/severity"
	"github.com/sabouaram/tcpmsg/stats"
	"github.com/sabouaram/tcpmsg/wire"
)

// Role distinguishes the handful of dispatch branches that only make
// sense on one side of the connection (RegisterClient is server-only;
// AuthRequired/AuthSuccess/AuthFailure are client-only, per spec §4.4).
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

// DefaultMaxProxiedStreamSize (64 MiB) is the threshold at or above which a
// stream-mode payload is handed to the caller as a live connection reader
// instead of being buffered in memory (spec §4.4).
const DefaultMaxProxiedStreamSize = 64 << 20

// MessageHandler receives a fully-buffered application message.
type MessageHandler func(ctx context.Context, meta map[string]any, payload []byte)

// StreamHandler receives a payload as a reader; for proxied (large)
// payloads this reads directly off the connection and MUST be fully
// drained before the loop can decode the next frame.
type StreamHandler func(ctx context.Context, meta map[string]any, length int, payload io.ReadCloser)

// SyncRequestHandler answers a sync request; its return becomes the
// correlated response frame.
type SyncRequestHandler func(ctx context.Context, meta map[string]any, payload []byte) (respMeta map[string]any, respPayload []byte, err error)

// AuthRequestedFunc is the client-side callback invoked when the server
// challenges for a preshared key; it returns up to pskauth.MaxKeyLength
// bytes of key material.
type AuthRequestedFunc func(ctx context.Context) []byte

// Handlers bundles every user-supplied callback the loop may invoke.
// Message and Stream are mutually exclusive (spec §4.4 "If both or
// neither are registered, startup fails").
type Handlers struct {
	Message       MessageHandler
	Stream        StreamHandler
	SyncRequest   SyncRequestHandler
	AuthRequested AuthRequestedFunc

	OnAuthSuccess          func()
	OnAuthFailure          func()
	OnRegisterClient       func(newGUID uuid.UUID) liberr.Error
	OnExceptionEncountered func(err error)
	OnActivity             func()
}

// Validate enforces the mutually-exclusive message/stream handler rule.
func (h Handlers) Validate() liberr.Error {
	if h.Message == nil && h.Stream == nil {
		return ErrorNoHandler.Error()
	}
	if h.Message != nil && h.Stream != nil {
		return ErrorBothHandlersRegistered.Error()
	}
	return nil
}

// Config parameterizes one loop invocation.
type Config struct {
	Role                 Role
	RequireAuth          bool
	PresharedKey         []byte
	MaxProxiedStreamSize int64
	EventFunc            severity.EventFunc
}

// Run decodes and dispatches frames from ep until the connection is
// closed, a protocol-ending status arrives, or ctx is cancelled. It
// returns the reason the loop ended, suitable for an OnDisconnect event.
func Run(
	ctx context.Context,
	ep *conn.Endpoint,
	corr *correlator.Correlator,
	st *stats.Stats,
	cfg Config,
	h Handlers,
) wire.DisconnectReason {
	if e := h.Validate(); e != nil {
		severity.Emit(cfg.EventFunc, severity.Error, "receiver: invalid handler configuration", e)
		return wire.ReasonNormal
	}

	maxProxied := cfg.MaxProxiedStreamSize
	if maxProxied <= 0 {
		maxProxied = DefaultMaxProxiedStreamSize
	}

	unauthenticated := cfg.RequireAuth && cfg.Role == RoleServer

	for {
		select {
		case <-ctx.Done():
			return wire.ReasonNormal
		case <-ep.Done():
			return wire.ReasonNormal
		default:
		}

		header, e := wire.DecodeHeader(ctx, ep.Stream())
		if e != nil {
			if isQuietDisconnect(e) {
				severity.Emit(cfg.EventFunc, severity.Debug, "receiver: connection ended", e)
			} else {
				severity.Emit(cfg.EventFunc, severity.Error, "receiver: frame decode failed", e)
				if h.OnExceptionEncountered != nil {
					h.OnExceptionEncountered(e)
				}
			}
			return wire.ReasonNormal
		}

		if unauthenticated {
			reason, done := dispatchUnauthenticated(ep, header, cfg, h)
			if done {
				return reason
			}
			if header.Status == wire.StatusAuthRequested {
				unauthenticated = false
			}
			continue
		}

		if h.OnActivity != nil {
			h.OnActivity()
		}

		switch header.Status {
		case wire.StatusShutdown:
			return wire.ReasonShutdown
		case wire.StatusRemoved:
			return wire.ReasonRemoved
		case wire.StatusTimeout:
			return wire.ReasonTimeout

		case wire.StatusAuthRequired:
			if cfg.Role != RoleClient {
				continue
			}
			if e := respondToChallenge(ep, h, ctx, st); e != nil {
				severity.Emit(cfg.EventFunc, severity.Error, "receiver: auth response failed", e)
				return wire.ReasonAuthFailure
			}

		case wire.StatusAuthSuccess:
			if cfg.Role == RoleClient && h.OnAuthSuccess != nil {
				h.OnAuthSuccess()
			}

		case wire.StatusAuthFailure:
			if cfg.Role == RoleClient && h.OnAuthFailure != nil {
				h.OnAuthFailure()
			}
			return wire.ReasonAuthFailure

		case wire.StatusRegisterClient:
			if cfg.Role == RoleServer && h.OnRegisterClient != nil {
				newGUID := uuid.Nil
				if header.SenderGUID != nil {
					newGUID = *header.SenderGUID
				}
				if e := h.OnRegisterClient(newGUID); e != nil {
					severity.Emit(cfg.EventFunc, severity.Error, "receiver: register client rekey failed", e)
				}
			}

		case wire.StatusNormal:
			if e := dispatchNormal(ctx, ep, corr, st, header, h, maxProxied); e != nil {
				severity.Emit(cfg.EventFunc, severity.Error, "receiver: normal frame dispatch failed", e)
				if h.OnExceptionEncountered != nil {
					h.OnExceptionEncountered(e)
				}
				return wire.ReasonNormal
			}
		}
	}
}

// isQuietDisconnect reports whether e represents an ordinary end-of-life
// condition (peer closed, context cancelled) that the spec says to log at
// Debug rather than Error (§4.4 error handling rule).
func isQuietDisconnect(e liberr.Error) bool {
	return e.IsCode(wire.ErrorPeerClosed) || e.IsCode(wire.ErrorCancelled)
}

// dispatchUnauthenticated handles every frame seen while the connection
// has not yet completed the PSK handshake (spec §4.7). Any frame other
// than the expected AuthRequested response forces an immediate
// disconnect with AuthFailure.
func dispatchUnauthenticated(ep *conn.Endpoint, header wire.Header, cfg Config, h Handlers) (wire.DisconnectReason, bool) {
	if header.Status != wire.StatusAuthRequested {
		_ = sender.SendInternal(ep, pskauth.FailureHeader(), nil, nil)
		return wire.ReasonAuthFailure, true
	}

	if e := pskauth.Validate(cfg.PresharedKey, header.PSK); e != nil {
		_ = sender.SendInternal(ep, pskauth.FailureHeader(), nil, nil)
		return wire.ReasonAuthFailure, true
	}

	if se := sender.SendInternal(ep, pskauth.SuccessHeader(), nil, nil); se != nil {
		return wire.ReasonAuthFailure, true
	}

	if h.OnAuthSuccess != nil {
		h.OnAuthSuccess()
	}

	return wire.ReasonNormal, false
}

// respondToChallenge is the client-side reaction to an AuthRequired
// frame: ask the caller for key material and send it back.
func respondToChallenge(ep *conn.Endpoint, h Handlers, ctx context.Context, st *stats.Stats) liberr.Error {
	var material []byte
	if h.AuthRequested != nil {
		material = h.AuthRequested(ctx)
	}
	return sender.SendInternal(ep, pskauth.ResponseHeader(material), nil, st)
}

// dispatchNormal handles StatusNormal frames: sync requests, sync
// responses, and plain application messages/streams.
func dispatchNormal(
	ctx context.Context,
	ep *conn.Endpoint,
	corr *correlator.Correlator,
	st *stats.Stats,
	header wire.Header,
	h Handlers,
	maxProxied int64,
) liberr.Error {
	switch {
	case header.SyncResp:
		payload, e := readBuffered(ep, header.Len)
		if e != nil {
			return e
		}
		if st != nil {
			st.AddBytesReceived(len(payload))
			st.IncMessagesReceived()
		}
		if !header.Expired(time.Now()) {
			corr.Publish(header.ConvGUID, correlator.Response{Metadata: header.MD, Payload: payload})
		}
		return nil

	case header.SyncReq:
		payload, e := readBuffered(ep, header.Len)
		if e != nil {
			return e
		}
		if st != nil {
			st.AddBytesReceived(len(payload))
			st.IncMessagesReceived()
		}
		if header.Expired(time.Now()) {
			return nil
		}
		return handleSyncRequest(ctx, ep, st, header, payload, h)

	default:
		return deliverMessage(ctx, ep, st, header, h, maxProxied)
	}
}

func handleSyncRequest(ctx context.Context, ep *conn.Endpoint, st *stats.Stats, header wire.Header, payload []byte, h Handlers) liberr.Error {
	if h.SyncRequest == nil {
		return nil
	}

	respMD, respPayload, err := h.SyncRequest(ctx, header.MD, payload)
	if err != nil {
		if h.OnExceptionEncountered != nil {
			h.OnExceptionEncountered(err)
		}
		return nil
	}

	resp := wire.Header{
		Len:      len(respPayload),
		Status:   wire.StatusNormal,
		MD:       respMD,
		SyncResp: true,
		TS:       wire.Now(),
		Exp:      header.Exp,
		ConvGUID: header.ConvGUID,
	}

	return sender.SendInternal(ep, resp, bytes.NewReader(respPayload), st)
}

func deliverMessage(ctx context.Context, ep *conn.Endpoint, st *stats.Stats, header wire.Header, h Handlers, maxProxied int64) liberr.Error {
	if h.Stream != nil {
		if int64(header.Len) >= maxProxied {
			reader := ioutils.NewBoundedReader(ep.Stream(), int64(header.Len))
			h.Stream(ctx, header.MD, header.Len, reader)
			if st != nil {
				st.AddBytesReceived(header.Len)
				st.IncMessagesReceived()
			}
			return nil
		}

		payload, e := readBuffered(ep, header.Len)
		if e != nil {
			return e
		}
		if st != nil {
			st.AddBytesReceived(len(payload))
			st.IncMessagesReceived()
		}
		h.Stream(ctx, header.MD, header.Len, ioutils.NewBufferReadCloser(bytes.NewBuffer(payload)))
		return nil
	}

	payload, e := readBuffered(ep, header.Len)
	if e != nil {
		return e
	}
	if st != nil {
		st.AddBytesReceived(len(payload))
		st.IncMessagesReceived()
	}
	if h.Message != nil {
		h.Message(ctx, header.MD, payload)
	}
	return nil
}

func readBuffered(ep *conn.Endpoint, n int) ([]byte, liberr.Error) {
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(ep.Stream(), buf); err != nil {
		return nil, ErrorReadPayload.ErrorParent(err)
	}
	return buf, nil
}

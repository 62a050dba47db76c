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

// Package wire implements the length-framed, JSON-header wire protocol: the
// Status enum, the Header record, and the Framer that encodes/decodes one
// frame at a time (spec §3, §4.1, §6.1).
package wire

import (
	"fmt"
	"strings"
)

// Status classifies one frame's purpose in the protocol.
type Status uint8

const (
	// StatusNormal carries an application payload (sync request, sync
	// response, or a plain message) depending on the SyncReq/SyncResp
	// header flags.
	StatusNormal Status = iota
	// StatusRemoved signals a server-initiated disconnect.
	StatusRemoved
	// StatusShutdown signals the sender is shutting down voluntarily.
	StatusShutdown
	// StatusTimeout signals the connection was closed for inactivity.
	StatusTimeout
	// StatusAuthRequired is sent by the server immediately after accept
	// when a preshared key is configured.
	StatusAuthRequired
	// StatusAuthRequested carries the client's preshared key material.
	StatusAuthRequested
	// StatusAuthSuccess confirms a matching preshared key.
	StatusAuthSuccess
	// StatusAuthFailure confirms a mismatched preshared key, or any
	// protocol violation committed before authentication completed.
	StatusAuthFailure
	// StatusRegisterClient carries a client-chosen GUID that rekeys the
	// server-assigned provisional identity.
	StatusRegisterClient
)

// String returns the wire name of the status, used verbatim as the JSON
// string value of the header's "status" field.
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusRemoved:
		return "Removed"
	case StatusShutdown:
		return "Shutdown"
	case StatusTimeout:
		return "Timeout"
	case StatusAuthRequired:
		return "AuthRequired"
	case StatusAuthRequested:
		return "AuthRequested"
	case StatusAuthSuccess:
		return "AuthSuccess"
	case StatusAuthFailure:
		return "AuthFailure"
	case StatusRegisterClient:
		return "RegisterClient"
	}

	return "unknown"
}

// ParseStatus parses a wire status string back into a Status. Unrecognized
// input is reported via ok=false so the caller can raise a protocol error
// instead of silently treating it as Normal.
func ParseStatus(s string) (status Status, ok bool) {
	switch strings.TrimSpace(s) {
	case StatusNormal.String():
		return StatusNormal, true
	case StatusRemoved.String():
		return StatusRemoved, true
	case StatusShutdown.String():
		return StatusShutdown, true
	case StatusTimeout.String():
		return StatusTimeout, true
	case StatusAuthRequired.String():
		return StatusAuthRequired, true
	case StatusAuthRequested.String():
		return StatusAuthRequested, true
	case StatusAuthSuccess.String():
		return StatusAuthSuccess, true
	case StatusAuthFailure.String():
		return StatusAuthFailure, true
	case StatusRegisterClient.String():
		return StatusRegisterClient, true
	}

	return StatusNormal, false
}

// MarshalJSON serializes the Status as its wire string, per §6.1 ("member
// order is irrelevant" but field *values* are strings, not raw ints).
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the wire string back into a Status. An unrecognized
// value is returned as an error, so the Framer reports the header as
// malformed instead of treating it as StatusNormal.
func (s *Status) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	v, ok := ParseStatus(str)
	if !ok {
		return fmt.Errorf("unknown status %q", str)
	}
	*s = v
	return nil
}

// DisconnectReason mirrors the subset of Status values the spec uses to
// describe *why* a connection ended (§3, §6.3, §7). It is a distinct type
// from Status because not every Status value is a valid disconnect reason
// (e.g. StatusAuthRequested never describes a teardown).
type DisconnectReason uint8

const (
	ReasonNormal DisconnectReason = iota
	ReasonRemoved
	ReasonShutdown
	ReasonTimeout
	ReasonAuthFailure
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNormal:
		return "Normal"
	case ReasonRemoved:
		return "Removed"
	case ReasonShutdown:
		return "Shutdown"
	case ReasonTimeout:
		return "Timeout"
	case ReasonAuthFailure:
		return "AuthFailure"
	}

	return "unknown"
}

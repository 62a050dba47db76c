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

package wire

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// wireTimeLayout is the spec's ISO-8601-ish timestamp layout (§6.1):
// yyyy-MM-dd HH:mm:ss.fffzzz.
const wireTimeLayout = "2006-01-02 15:04:05.000-07:00"

// WireTime is a time.Time that marshals to/from the wire's timestamp
// layout instead of RFC3339, so captures stay readable and stable across
// the header's JSON encoding regardless of which JSON library a future
// maintainer swaps in (spec leaves "choice of JSON library" unconstrained).
type WireTime time.Time

// Now returns the current wall-clock time as a WireTime, truncated to
// millisecond precision to match the wire layout exactly.
func Now() WireTime {
	return WireTime(time.Now().UTC().Truncate(time.Millisecond))
}

// Time unwraps the WireTime back to a stdlib time.Time.
func (t WireTime) Time() time.Time {
	return time.Time(t)
}

// Add returns the WireTime advanced by d.
func (t WireTime) Add(d time.Duration) WireTime {
	return WireTime(t.Time().Add(d))
}

// Before reports whether t occurs before u.
func (t WireTime) Before(u WireTime) bool {
	return t.Time().Before(u.Time())
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time().UTC().Format(wireTimeLayout) + `"`), nil
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = WireTime{}
		return nil
	}

	p, err := time.Parse(wireTimeLayout, s)
	if err != nil {
		return err
	}

	*t = WireTime(p)
	return nil
}

// MetaValue is a discriminated-union JSON value carried in a frame's
// metadata map (spec §9: "model metadata as string → JSON-value to
// preserve JSON round-trips"). It is a thin alias over `any` because
// goccy/go-json already decodes arbitrary JSON into the same Go primitive
// set (string, float64, bool, nil, []any, map[string]any); the named type
// exists purely so Header.MD reads as a protocol-typed field rather than
// a bare map[string]any in call sites and doc comments.
type MetaValue = any

// Header is the wire record described in spec §3. It precedes the raw
// payload bytes in every frame, separated from them by the literal
// terminator "\r\n\r\n" (§4.1, §6.1).
type Header struct {
	Len        int               `json:"len"`
	PSK        []byte            `json:"psk,omitempty"`
	Status     Status            `json:"status"`
	MD         map[string]MetaValue `json:"md,omitempty"`
	SyncReq    bool              `json:"syncreq"`
	SyncResp   bool              `json:"syncresp"`
	TS         WireTime          `json:"ts"`
	Exp        *WireTime         `json:"exp,omitempty"`
	ConvGUID   uuid.UUID         `json:"convguid"`
	SenderGUID *uuid.UUID        `json:"senderguid,omitempty"`
}

// Expired reports whether the header carries an expiration that has
// already passed as of now. A header with no Exp never expires.
func (h Header) Expired(now time.Time) bool {
	if h.Exp == nil {
		return false
	}
	return h.Exp.Time().Before(now)
}

// NewConvGUID returns a fresh conversation identifier for a sync request.
func NewConvGUID() uuid.UUID {
	return uuid.New()
}

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
	"context"
	"io"

	json "github.com/goccy/go-json"

	liberr "github.com/sabouaram/tcpmsg/errors"
)

// Terminator is the four-byte sequence that ends a frame's JSON header and
// marks the start of its payload (spec §4.1, §6.1): CR LF CR LF.
var Terminator = [4]byte{0x0D, 0x0A, 0x0D, 0x0A}

// minHeaderRead is the number of bytes DecodeHeader reads unconditionally
// before it starts scanning for Terminator one byte at a time. It is a
// defensive minimum against tiny-read attacks (§6.1), not an assumption
// that every header is at least this long — a terminator landing inside
// this prefix is still found, per the Open Question in spec §9.
const minHeaderRead = 24

// zeroWindow is what the trailing four-byte window looks like when the
// peer has gone away mid-header: a closed stream yields only zero bytes
// once its internal buffering is exhausted rather than a clean io.EOF on
// some transports this library has to interoperate with.
var zeroWindow = [4]byte{0x00, 0x00, 0x00, 0x00}

// EncodeHeader serializes h as UTF-8 JSON immediately followed by
// Terminator (spec §4.1 EncodeHeader). The payload itself is written
// separately by the Sender.
func EncodeHeader(h Header) ([]byte, liberr.Error) {
	b, e := json.Marshal(h)
	if e != nil {
		return nil, ErrorProtocolMalformed.ErrorParent(e)
	}

	out := make([]byte, 0, len(b)+len(Terminator))
	out = append(out, b...)
	out = append(out, Terminator[:]...)
	return out, nil
}

// DecodeHeader reads one frame header from r, stopping as soon as
// Terminator is found, and parses everything before it as JSON (spec
// §4.1 DecodeHeader). The reader is left positioned exactly at the first
// payload byte. ctx is checked between reads so a cancelled context can
// abort the wait without needing to interrupt a blocking r.Read itself —
// callers pair this with a connection-level close on cancellation.
func DecodeHeader(ctx context.Context, r io.Reader) (Header, liberr.Error) {
	var buf []byte

	if e := readFull(ctx, r, &buf, minHeaderRead); e != nil {
		return Header{}, e
	}

	if idx, found := findTerminator(buf); found {
		return parseHeader(buf[:idx])
	}

	one := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return Header{}, ErrorCancelled.ErrorParent(ctx.Err())
		default:
		}

		n, err := r.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
		}
		if err != nil {
			if n == 0 {
				return Header{}, ErrorPeerClosed.ErrorParent(err)
			}
		}

		if len(buf) >= 4 {
			var last4 [4]byte
			copy(last4[:], buf[len(buf)-4:])

			if last4 == zeroWindow {
				return Header{}, ErrorPeerClosed.Error()
			}

			if last4 == Terminator {
				return parseHeader(buf[:len(buf)-4])
			}
		}

		if err != nil {
			return Header{}, ErrorPeerClosed.ErrorParent(err)
		}
	}
}

// readFull reads exactly n bytes from r into *buf, respecting ctx
// cancellation at the call boundary (a single io.ReadFull call cannot be
// interrupted mid-flight without OS-level support; the connection layer
// handles that by closing the socket, which unblocks Read with an error).
func readFull(ctx context.Context, r io.Reader, buf *[]byte, n int) liberr.Error {
	select {
	case <-ctx.Done():
		return ErrorCancelled.ErrorParent(ctx.Err())
	default:
	}

	tmp := make([]byte, n)
	read, err := io.ReadFull(r, tmp)
	*buf = append(*buf, tmp[:read]...)

	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return ErrorPeerClosed.ErrorParent(err)
		}
		return ErrorPeerClosed.ErrorParent(err)
	}

	return nil
}

// findTerminator reports the earliest index of Terminator within buf, if
// any — used to catch a terminator that falls inside the unconditional
// minHeaderRead prefix (spec §9 Open Question: "read-then-terminator
// scan").
func findTerminator(buf []byte) (idx int, found bool) {
	for i := 0; i+4 <= len(buf); i++ {
		var window [4]byte
		copy(window[:], buf[i:i+4])
		if window == Terminator {
			return i, true
		}
	}
	return 0, false
}

// parseHeader rejects an empty header, invalid JSON (including an unknown
// status value) and a negative len. Fields absent from the JSON keep their
// zero values; no field is checked for presence.
func parseHeader(raw []byte) (Header, liberr.Error) {
	var h Header

	if len(raw) == 0 {
		return Header{}, ErrorProtocolMalformed.Error()
	}

	if e := json.Unmarshal(raw, &h); e != nil {
		return Header{}, ErrorProtocolMalformed.ErrorParent(e)
	}

	if h.Len < 0 {
		return Header{}, ErrorProtocolMalformed.Error()
	}

	return h, nil
}

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

// Package pskauth implements the pre-shared-key authentication
// sub-protocol (spec §4.7): the AuthRequired/AuthRequested/AuthSuccess/
// AuthFailure frame exchange and the constant-time comparison of the
// presented key material.
package pskauth

import (
	"bytes"
	"crypto/subtle"

	"github.com/sabouaram/tcpmsg/wire"

	liberr "github.com/sabouaram/tcpmsg/errors"
)

// MaxKeyLength is the largest preshared key the wire protocol carries
// (spec §4.7 step 3: "psk set to exactly 16 bytes").
const MaxKeyLength = 16

// RequestHeader builds the server's AuthRequired challenge, sent
// immediately after accept (and TLS handshake, if any).
func RequestHeader() wire.Header {
	return wire.Header{Status: wire.StatusAuthRequired, TS: wire.Now()}
}

// ResponseHeader builds the client's AuthRequested frame carrying its key
// material.
func ResponseHeader(psk []byte) wire.Header {
	return wire.Header{Status: wire.StatusAuthRequested, PSK: psk, TS: wire.Now()}
}

// SuccessHeader builds the server's AuthSuccess acknowledgement.
func SuccessHeader() wire.Header {
	return wire.Header{Status: wire.StatusAuthSuccess, TS: wire.Now()}
}

// FailureHeader builds the server's AuthFailure notice.
func FailureHeader() wire.Header {
	return wire.Header{Status: wire.StatusAuthFailure, TS: wire.Now()}
}

// Compare reports whether presented matches expected, trimming
// leading/trailing whitespace from both sides before comparing in
// constant time. Trimming is preserved as specified even though it
// technically widens the accepted input space; it is not this port's
// place to tighten the wire protocol's own authentication contract.
func Compare(expected, presented []byte) bool {
	e := bytes.TrimSpace(expected)
	p := bytes.TrimSpace(presented)
	return subtle.ConstantTimeCompare(e, p) == 1
}

// Validate checks a client's presented key material against expected,
// rejecting oversized material before ever comparing it.
func Validate(expected, presented []byte) liberr.Error {
	if len(presented) > MaxKeyLength {
		return ErrorTooLong.Error()
	}
	if !Compare(expected, presented) {
		return ErrorMismatch.Error()
	}
	return nil
}

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

// Package sender implements the frame writer (spec §4.5): it serializes
// a header, then copies a payload in bounded chunks, under the
// connection's write lock so concurrent Send calls never interleave.
package sender

import (
	"io"

	"github.com/sabouaram/tcpmsg/conn"
	"github.com/sabouaram/tcpmsg/stats"
	"github.com/sabouaram/tcpmsg/wire"

	liberr "github.com/sabouaram/tcpmsg/errors"
)

// SendInternal writes header followed by up to header.Len bytes read from
// payload, atomically with respect to any other SendInternal call on the
// same endpoint. On any I/O failure the endpoint is closed so the
// receiver loop observes the same disconnect.
func SendInternal(ep *conn.Endpoint, header wire.Header, payload io.Reader, st *stats.Stats) liberr.Error {
	if header.Len < 0 {
		return ErrorNegativeLength.Error()
	}

	if e := ep.AcquireWrite(); e != nil {
		return e
	}
	defer ep.ReleaseWrite()

	enc, e := wire.EncodeHeader(header)
	if e != nil {
		return e
	}

	stream := ep.Stream()

	if _, err := stream.Write(enc); err != nil {
		_ = ep.Close()
		return ErrorWriteHeader.ErrorParent(err)
	}

	if header.Len > 0 {
		if payload == nil {
			_ = ep.Close()
			return ErrorWritePayload.Error()
		}

		buf := make([]byte, chunkSize(ep.BufferSize()))
		n, err := io.CopyBuffer(stream, io.LimitReader(payload, int64(header.Len)), buf)
		if err != nil {
			_ = ep.Close()
			return ErrorWritePayload.ErrorParent(err)
		}
		if st != nil {
			st.AddBytesSent(int(n))
		}
	}

	if st != nil {
		st.IncMessagesSent()
	}

	return nil
}

func chunkSize(bufSize int) int {
	if bufSize <= 0 {
		return conn.DefaultStreamBufferSize
	}
	return bufSize
}

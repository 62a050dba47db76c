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

package client

import (
	liberr "github.com/sabouaram/tcpmsg/errors"
)

const (
	ErrorInvalidConfig liberr.CodeError = iota + liberr.MinPkgClient
	ErrorInvalidHandlers
	ErrorAlreadyConnected
	ErrorNotConnected
	ErrorDial
	ErrorDisposed
	ErrorInvalidOffset
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorInvalidConfig)
	liberr.RegisterIdFctMessage(ErrorInvalidConfig, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case liberr.UNK_ERROR:
		return ""
	case ErrorInvalidConfig:
		return "client configuration failed validation"
	case ErrorInvalidHandlers:
		return "exactly one of message or stream handler must be registered, not both"
	case ErrorAlreadyConnected:
		return "client is already connected"
	case ErrorNotConnected:
		return "client is not connected"
	case ErrorDial:
		return "failed to connect to the server"
	case ErrorDisposed:
		return "client has been disposed and cannot reconnect"
	case ErrorInvalidOffset:
		return "send offset is out of bounds for the given payload"
	}

	return ""
}

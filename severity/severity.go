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

// Package severity carries the library's ambient diagnostic sink: a small
// leveled enum and a callback signature every internal goroutine funnels
// its debug/error traffic through instead of owning a logger. The library
// never writes to a sink itself (see spec §1 Non-goals); it only classifies.
package severity

import (
	"github.com/sirupsen/logrus"
)

// Severity is the level at which one diagnostic event is reported.
type Severity uint8

const (
	// Debug carries expected, routine conditions: cancellation, peer
	// closing a connection, idle teardown.
	Debug Severity = iota
	// Info carries lifecycle milestones: connect, disconnect, auth success.
	Info
	// Warn carries degraded-but-recovered conditions: keepalive tuning
	// unsupported on this platform, a dropped expired sync frame.
	Warn
	// Error carries unexpected failures surfaced to the caller as events.
	Error
	// Fatal carries failures that end the owning goroutine's loop.
	Fatal
)

// String returns the human-readable name of the severity.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "Debug"
	case Info:
		return "Info"
	case Warn:
		return "Warning"
	case Error:
		return "Error"
	case Fatal:
		return "Fatal"
	}

	return "unknown"
}

// Logrus converts the Severity to its equivalent logrus.Level, so a consumer
// already running a logrus-based logger can forward the event directly.
func (s Severity) Logrus() logrus.Level {
	switch s {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warn:
		return logrus.WarnLevel
	case Error:
		return logrus.ErrorLevel
	case Fatal:
		return logrus.FatalLevel
	}

	return logrus.InfoLevel
}

// EventFunc is the callback signature every internal goroutine uses to
// report a diagnostic. err may be nil for pure lifecycle notices. A nil
// EventFunc is a silent no-op — never call it without checking.
type EventFunc func(sev Severity, message string, err error)

// Emit calls fct if non-nil. Safe to call with a nil fct from any goroutine.
func Emit(fct EventFunc, sev Severity, message string, err error) {
	if fct == nil {
		return
	}
	fct(sev, message, err)
}

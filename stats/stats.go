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

// Package stats holds the atomic counters exposed through the public
// surface's Stats() accessor (spec §6 "Statistics").
package stats

import (
	"sync/atomic"
	"time"
)

// Stats is a set of process-wide atomic counters. The zero value is ready
// to use.
type Stats struct {
	bytesSent       atomic.Int64
	bytesReceived   atomic.Int64
	messagesSent    atomic.Int64
	messagesReceived atomic.Int64
	connectionsTotal atomic.Int64
	startedAt       time.Time
}

// New returns a Stats with its start time stamped to now.
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) AddBytesSent(n int)        { s.bytesSent.Add(int64(n)) }
func (s *Stats) AddBytesReceived(n int)    { s.bytesReceived.Add(int64(n)) }
func (s *Stats) IncMessagesSent()          { s.messagesSent.Add(1) }
func (s *Stats) IncMessagesReceived()      { s.messagesReceived.Add(1) }
func (s *Stats) IncConnectionsTotal()      { s.connectionsTotal.Add(1) }

func (s *Stats) BytesSent() int64        { return s.bytesSent.Load() }
func (s *Stats) BytesReceived() int64    { return s.bytesReceived.Load() }
func (s *Stats) MessagesSent() int64     { return s.messagesSent.Load() }
func (s *Stats) MessagesReceived() int64 { return s.messagesReceived.Load() }
func (s *Stats) ConnectionsTotal() int64 { return s.connectionsTotal.Load() }

// Uptime returns the duration since New was called.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Reset zeroes every counter without touching the start time.
func (s *Stats) Reset() {
	s.bytesSent.Store(0)
	s.bytesReceived.Store(0)
	s.messagesSent.Store(0)
	s.messagesReceived.Store(0)
	s.connectionsTotal.Store(0)
}

// Snapshot is the read-only view returned to callers (e.g. for JSON
// encoding in a diagnostics endpoint).
type Snapshot struct {
	BytesSent        int64         `json:"bytesSent"`
	BytesReceived    int64         `json:"bytesReceived"`
	MessagesSent     int64         `json:"messagesSent"`
	MessagesReceived int64         `json:"messagesReceived"`
	ConnectionsTotal int64         `json:"connectionsTotal"`
	Uptime           time.Duration `json:"uptime"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:        s.BytesSent(),
		BytesReceived:    s.BytesReceived(),
		MessagesSent:     s.MessagesSent(),
		MessagesReceived: s.MessagesReceived(),
		ConnectionsTotal: s.ConnectionsTotal(),
		Uptime:           s.Uptime(),
	}
}

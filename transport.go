// go-rcx
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-rcx.
//
// go-rcx is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-rcx is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-rcx; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package rcx

import (
	"time"

	"github.com/ZaparooProject/go-rcx/internal/frame"
	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// Transport is the byte link to the IR tower. It is opened and configured
// (baud rate, parity, stop and data bits) by its constructor; a Session only
// moves bytes through it.
type Transport interface {
	// Write queues bytes for transmission
	Write(p []byte) (int, error)

	// Flush blocks until written bytes have left the host
	Flush() error

	// Read blocks until at least one byte arrives or the read timeout
	// elapses. A timeout is reported as (0, nil).
	Read(p []byte) (int, error)

	// DiscardInput drops any bytes already buffered on the inbound side
	DiscardInput() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a serial IR tower.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a byte-level mock implementation of Transport for
// testing. Each Write is handed to the handler, whose result is queued as
// inbound bytes; an empty queue reads as a timeout.
type MockTransport struct {
	handler   func(written []byte) []byte
	readErr   error
	writeErr  error
	rx        []byte
	writes    [][]byte
	timeout   time.Duration
	readChunk int
	discards  int
	flushes   int
	reads     int
	mu        syncutil.Mutex
	connected bool
}

// NewMockTransport creates a new mock transport with no handler, so every
// exchange times out until one is set.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
	}
}

// Write implements Transport interface
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrLinkClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	written := append([]byte(nil), p...)
	m.writes = append(m.writes, written)
	if m.handler != nil {
		m.rx = append(m.rx, m.handler(written)...)
	}
	return len(p), nil
}

// Flush implements Transport interface
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Read implements Transport interface
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if !m.connected {
		return 0, ErrLinkClosed
	}
	if m.readErr != nil {
		return 0, m.readErr
	}

	n := len(m.rx)
	if m.readChunk > 0 && n > m.readChunk {
		n = m.readChunk
	}
	n = copy(p, m.rx[:n])
	m.rx = m.rx[n:]
	return n, nil
}

// DiscardInput implements Transport interface
func (m *MockTransport) DiscardInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = nil
	m.discards++
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Timeout returns the read timeout last set.
func (m *MockTransport) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetHandler sets the function that produces inbound bytes for each write.
func (m *MockTransport) SetHandler(handler func(written []byte) []byte) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// RespondWith installs a handler that behaves like a healthy tower: it echoes
// the written frame and appends a frame carrying reply(cmd), where cmd is the
// decoded command. A nil reply leaves only the echo, which reads as a timeout
// once consumed.
func (m *MockTransport) RespondWith(reply func(cmd []byte) []byte) {
	m.SetHandler(func(written []byte) []byte {
		out := append([]byte(nil), written...)
		cmd, err := frame.Decode(written)
		if err != nil {
			return out
		}
		payload := reply(cmd)
		if len(payload) == 0 {
			return out
		}
		resp, err := frame.Build(payload)
		if err != nil {
			return out
		}
		return append(out, resp...)
	})
}

// InjectInbound queues bytes as if they arrived unprompted.
func (m *MockTransport) InjectInbound(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// SetReadChunk limits how many bytes a single Read returns (0 = no limit).
func (m *MockTransport) SetReadChunk(n int) {
	m.mu.Lock()
	m.readChunk = n
	m.mu.Unlock()
}

// SetWriteError makes every Write fail with err (nil clears it).
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetReadError makes every Read fail with err (nil clears it).
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Writes returns a copy of every buffer passed to Write.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// WriteCount returns the number of Write calls.
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// ReadCount returns the number of Read calls.
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// DiscardCount returns how many times the inbound buffer was drained.
func (m *MockTransport) DiscardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discards
}

// FlushCount returns the number of Flush calls.
func (m *MockTransport) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Reset clears recorded activity and reconnects.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.writes = nil
	m.rx = nil
	m.discards = 0
	m.flushes = 0
	m.reads = 0
	m.connected = true
	m.mu.Unlock()
}

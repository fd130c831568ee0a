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

// Package uart provides the serial IR tower transport.
package uart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-rcx"
	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// Mode returns the line settings of the serial IR tower: 2400 baud, 8 data
// bits, odd parity, one stop bit.
func Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: rcx.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.OneStopBit,
	}
}

// Transport implements the rcx.Transport interface for a serial IR tower.
type Transport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

// New opens portName with the tower line settings and the default read
// timeout.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, Mode())
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already opened port, applying the tower line settings
// and the default read timeout.
func NewWithPort(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetMode(Mode()); err != nil {
		return nil, fmt.Errorf("failed to set UART mode: %w", err)
	}
	if err := port.SetReadTimeout(rcx.DefaultReadTimeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
		timeout:  rcx.DefaultReadTimeout,
	}, nil
}

// PortName returns the device path the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// Write implements rcx.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	if !t.IsConnected() {
		return 0, rcx.ErrLinkClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, t.wrap("write", err)
	}
	return n, nil
}

// Flush blocks until the written bytes have left the UART.
func (t *Transport) Flush() error {
	if !t.IsConnected() {
		return rcx.ErrLinkClosed
	}
	return t.drainWithRetry()
}

// Read implements rcx.Transport. The serial driver reports a read timeout
// as (0, nil), which is passed on unchanged.
func (t *Transport) Read(p []byte) (int, error) {
	if !t.IsConnected() {
		return 0, rcx.ErrLinkClosed
	}
	n, err := t.port.Read(p)
	if err != nil {
		return n, t.wrap("read", err)
	}
	return n, nil
}

// DiscardInput drops bytes the driver has buffered on the inbound side.
func (t *Transport) DiscardInput() error {
	if !t.IsConnected() {
		return rcx.ErrLinkClosed
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return t.wrap("reset input", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	t.timeout = timeout
	return nil
}

// Timeout returns the read timeout in effect.
func (t *Transport) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() rcx.TransportType {
	return rcx.TransportUART
}

// wrap maps a closed port to rcx.ErrLinkClosed and annotates anything else.
func (t *Transport) wrap(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("UART %s %s: %w", op, t.portName, rcx.ErrLinkClosed)
	}
	return fmt.Errorf("UART %s %s: %w", op, t.portName, err)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry drains the port, retrying calls interrupted by a signal
func (t *Transport) drainWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		if err = t.port.Drain(); err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(baseDelay << attempt)
	}

	return t.wrap("drain", err)
}

var _ rcx.Transport = (*Transport)(nil)

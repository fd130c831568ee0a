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

package testing

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// ErrPortClosed is returned when a closed VirtualSerialPort is used.
var ErrPortClosed = errors.New("port is closed")

// discarder is implemented by backends that can drop pending input.
type discarder interface {
	Discard()
}

// VirtualSerialPort implements serial.Port on top of an io.ReadWriter, such
// as a VirtualRCX, so the serial transport can be tested without hardware.
type VirtualSerialPort struct {
	backend     io.ReadWriter
	mode        *serial.Mode
	readTimeout time.Duration
	mu          syncutil.Mutex
	drains      int
	resets      int
	closed      bool
}

// NewVirtualSerialPort creates a serial port backed by backend.
func NewVirtualSerialPort(backend io.ReadWriter) *VirtualSerialPort {
	return &VirtualSerialPort{backend: backend}
}

// SetMode records the requested line settings.
func (p *VirtualSerialPort) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := *mode
	p.mode = &m
	return nil
}

// Mode returns the last line settings applied, or nil.
func (p *VirtualSerialPort) Mode() *serial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *VirtualSerialPort) Read(b []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrPortClosed
	}
	n, err := p.backend.Read(b)
	if err != nil {
		return n, fmt.Errorf("virtual read: %w", err)
	}
	return n, nil
}

func (p *VirtualSerialPort) Write(b []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrPortClosed
	}
	n, err := p.backend.Write(b)
	if err != nil {
		return n, fmt.Errorf("virtual write: %w", err)
	}
	return n, nil
}

// Drain counts the call; writes reach the backend synchronously.
func (p *VirtualSerialPort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

// ResetInputBuffer drops whatever the backend has queued for the host.
func (p *VirtualSerialPort) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()
	if d, ok := p.backend.(discarder); ok {
		d.Discard()
	}
	return nil
}

func (*VirtualSerialPort) ResetOutputBuffer() error {
	return nil
}

func (*VirtualSerialPort) SetDTR(_ bool) error {
	return nil
}

func (*VirtualSerialPort) SetRTS(_ bool) error {
	return nil
}

func (*VirtualSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *VirtualSerialPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

// ReadTimeout returns the last read timeout set.
func (p *VirtualSerialPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}

func (p *VirtualSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (*VirtualSerialPort) Break(_ time.Duration) error {
	return nil
}

// DrainCount returns how many times Drain was called.
func (p *VirtualSerialPort) DrainCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

// ResetCount returns how many times ResetInputBuffer was called.
func (p *VirtualSerialPort) ResetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

func (p *VirtualSerialPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var _ serial.Port = (*VirtualSerialPort)(nil)

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
	"github.com/ZaparooProject/go-rcx/internal/frame"
)

// Encoder turns commands into frames for one link. The RCX drops a command
// whose opcode equals the previous one it received, taking it for a repeat,
// so the encoder flips bit 3 of an opcode that matches the last one it sent.
// The RCX treats both forms of an opcode the same.
//
// Encoder is not safe for concurrent use; a Session guards its encoder with
// the link lock.
type Encoder struct {
	last byte
}

// NewEncoder returns an encoder with no opcode history.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns the frame for cmd and records its opcode. cmd is not
// modified.
func (e *Encoder) Encode(cmd []byte) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, ErrInvalidCommand
	}

	body := append([]byte(nil), cmd...)
	if body[0] == e.last {
		body[0] ^= duplicateBit
	}
	e.last = body[0]

	out, err := frame.Build(body)
	if err != nil {
		return nil, ErrInvalidCommand
	}
	return out, nil
}

// LastOpcode returns the opcode of the most recent frame, after correction.
func (e *Encoder) LastOpcode() byte {
	return e.last
}

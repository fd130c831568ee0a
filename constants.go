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

import "time"

// Link constants
const (
	// DefaultRetryCount is the number of attempts for a retryable exchange.
	DefaultRetryCount = 3
	// DefaultReadTimeout is how long one read waits for the tower.
	DefaultReadTimeout = 1 * time.Second
	// DefaultBaudRate is the IR tower line speed.
	DefaultBaudRate = 2400
)

// Download constants
const (
	// DefaultChunkSize is the number of program bytes per Download command.
	DefaultChunkSize = 20
	// MaxChunkSize is the largest chunk the 16-bit length field of a Download
	// command can describe. The receive buffer usually limits it further.
	MaxChunkSize = 0xFFFF
	// MaxPayloadSize is the largest payload a begin command can announce.
	MaxPayloadSize = 0xFFFF
	// DownloadSound is the system sound played after a program download.
	DownloadSound byte = 5
)

// Program container limits
const (
	// MaxTasks is the number of task slots per program.
	MaxTasks = 10
	// MaxPrograms is the number of program slots on the RCX.
	MaxPrograms = 5
)

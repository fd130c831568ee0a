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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of a JitteryLink.
type JitterConfig struct {
	// MaxLatencyMs bounds the random delay before each read
	MaxLatencyMs int
	// FragmentMinBytes is the smallest fragment a read returns
	FragmentMinBytes int
	// StallAfterBytes makes one read return nothing after this many bytes
	StallAfterBytes int
	// Seed makes fragmentation reproducible (0 picks a random seed)
	Seed uint64
	// FragmentReads splits reads at random points
	FragmentReads bool
}

// DefaultJitterConfig returns a configuration that fragments every reply
// without slowing tests down.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     2,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryLink wraps an io.ReadWriter to behave like a USB serial tower:
// replies trickle in as random fragments with small gaps, so a reader sees
// partial frames. Bytes are buffered, never lost.
//
// A configured stall returns a single empty read once StallAfterBytes have
// been delivered, which a reader takes as a read timeout.
type JitteryLink struct {
	backend   io.ReadWriter
	rng       *rand.Rand
	readBuf   []byte
	config    JitterConfig
	delivered int
	stalled   bool
}

// NewJitteryLink wraps backend with jitter simulation.
func NewJitteryLink(backend io.ReadWriter, config JitterConfig) *JitteryLink {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryLink{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
		readBuf: make([]byte, 0, 256),
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryLink) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns a random fragment of what the backend has produced.
func (j *JitteryLink) Read(buf []byte) (int, error) {
	if j.config.MaxLatencyMs > 0 {
		if delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond; delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 256)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}
	if len(j.readBuf) == 0 {
		return 0, nil
	}

	if j.config.StallAfterBytes > 0 && !j.stalled && j.delivered >= j.config.StallAfterBytes {
		j.stalled = true
		return 0, nil
	}

	n := min(len(j.readBuf), len(buf))
	if j.config.StallAfterBytes > 0 && !j.stalled {
		n = min(n, j.config.StallAfterBytes-j.delivered)
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:n])
	j.readBuf = j.readBuf[n:]
	j.delivered += n
	return n, nil
}

// Discard drops buffered bytes and those still queued in the backend.
func (j *JitteryLink) Discard() {
	j.readBuf = j.readBuf[:0]
	if d, ok := j.backend.(discarder); ok {
		d.Discard()
	}
}

// ResetStall re-arms the stall.
func (j *JitteryLink) ResetStall() {
	j.delivered = 0
	j.stalled = false
}

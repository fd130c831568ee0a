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
	"fmt"

	"github.com/ZaparooProject/go-rcx/internal/frame"
)

// Option configures a Session
type Option func(*Session) error

// SessionConfig contains configuration options for a Session
type SessionConfig struct {
	// RetryConfig bounds attempts for retryable exchanges
	RetryConfig *RetryConfig
	// Progress, when set, is called after every acknowledged chunk
	Progress ProgressFunc
	// PortName labels errors, traces and logs
	PortName string
	// ChunkSize is the number of program bytes per Download command
	ChunkSize int
	// MaxResponseLength caps the receive buffer of one exchange
	MaxResponseLength int
	// TraceDepth is the number of wire entries kept per exchange
	TraceDepth int
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		RetryConfig:       DefaultRetryConfig(),
		ChunkSize:         DefaultChunkSize,
		MaxResponseLength: frame.DefaultMaxResponseLength,
		TraceDepth:        defaultTraceDepth,
	}
}

// chunkAckLength is the payload of a Download reply: opcode and status.
const chunkAckLength = 2

// chunkExchangeLength returns how many bytes one Download exchange of
// chunkSize data bytes receives: the echoed command frame and the reply frame.
func chunkExchangeLength(chunkSize int) int {
	return frame.EncodedLength(downloadChunkOverhead+chunkSize) + frame.EncodedLength(chunkAckLength)
}

// validate checks settings that depend on each other, once every option has
// been applied.
func (c *SessionConfig) validate() error {
	if need := chunkExchangeLength(c.ChunkSize); need > c.MaxResponseLength {
		return fmt.Errorf("%w: chunk size %d needs a %d byte receive buffer, max response length is %d",
			ErrInvalidOption, c.ChunkSize, need, c.MaxResponseLength)
	}
	return nil
}

// WithRetryCount sets how many attempts a retryable exchange gets.
func WithRetryCount(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("%w: retry count %d", ErrInvalidOption, n)
		}
		s.config.RetryConfig = &RetryConfig{MaxAttempts: n}
		return nil
	}
}

// WithChunkSize sets the number of program bytes per Download command. The
// echoed chunk and its reply must also fit in the max response length, which
// New checks once all options are applied.
func WithChunkSize(n int) Option {
	return func(s *Session) error {
		if n < 1 || n > MaxChunkSize {
			return fmt.Errorf("%w: chunk size %d", ErrInvalidOption, n)
		}
		s.config.ChunkSize = n
		return nil
	}
}

// WithMaxResponseLength caps how many bytes one exchange may receive,
// echo included.
func WithMaxResponseLength(n int) Option {
	return func(s *Session) error {
		if n < frame.MinReplyLength {
			return fmt.Errorf("%w: max response length %d", ErrInvalidOption, n)
		}
		s.config.MaxResponseLength = n
		return nil
	}
}

// WithProgress registers a callback for transfer progress.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) error {
		s.config.Progress = fn
		return nil
	}
}

// WithTraceDepth sets how many wire entries an error trace keeps.
func WithTraceDepth(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("%w: trace depth %d", ErrInvalidOption, n)
		}
		s.config.TraceDepth = n
		return nil
	}
}

// WithPortName overrides the port label used in errors and logs.
func WithPortName(name string) Option {
	return func(s *Session) error {
		s.config.PortName = name
		return nil
	}
}

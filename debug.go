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
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// debugEnabled controls whether debug logging is active
var debugEnabled atomic.Bool

// logger receives every debug line
var logger atomic.Pointer[zerolog.Logger]

func init() {
	// Enable debug logging if RCX_DEBUG or DEBUG environment variable is set
	if os.Getenv("RCX_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	SetLogOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
}

// SetLogOutput sends debug output to w. Pass a zerolog.ConsoleWriter for
// human-readable lines or any io.Writer for JSON.
func SetLogOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Str("component", "rcx").Logger()
	logger.Store(&l)
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug logging is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf prints debug information when debug mode is enabled.
func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	logger.Load().Debug().Msgf(format, args...)
}

// Debugln prints debug information when debug mode is enabled.
func Debugln(args ...any) {
	if !debugEnabled.Load() {
		return
	}
	logger.Load().Debug().Msg(fmt.Sprint(args...))
}

// debugWire logs one direction of wire traffic with structured fields.
func debugWire(dir TraceDirection, port string, data []byte, note string) {
	if !debugEnabled.Load() {
		return
	}
	logger.Load().Debug().
		Str("dir", string(dir)).
		Str("port", port).
		Str("bytes", formatHexBytes(data)).
		Int("len", len(data)).
		Msg(note)
}

// debugDuration logs a timed step.
func debugDuration(msg string, start time.Time) {
	if !debugEnabled.Load() {
		return
	}
	logger.Load().Debug().Dur("elapsed", time.Since(start)).Msg(msg)
}

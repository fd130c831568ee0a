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
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates data sent to the tower
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the tower
	TraceRX TraceDirection = "RX"
)

// TracePart names the section of an exchange an entry holds.
type TracePart string

const (
	// PartFrame is the encoded command frame written to the tower.
	PartFrame TracePart = "frame"
	// PartEcho is the tower's copy of the frame, the first len(frame) bytes
	// read in an attempt.
	PartEcho TracePart = "echo"
	// PartReply is everything read after the echo.
	PartReply TracePart = "reply"
	// PartTimeout marks a read that returned nothing.
	PartTimeout TracePart = "timeout"
)

// defaultTraceDepth is the number of entries kept per exchange
const defaultTraceDepth = 16

// TraceEntry is one recorded piece of wire traffic. Attempt counts from 1;
// retries resend identical frames, so it is the only thing telling them apart.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Part      TracePart
	Note      string
	Data      []byte
	Attempt   int
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] #%d %s %s", e.Timestamp.Format("15:04:05.000"), e.Attempt, e.Direction, e.Part)
	if e.Part != PartTimeout {
		s += ": " + formatHexBytes(e.Data)
	}
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the wire trace of a failed exchange.
//
//	if te := rcx.GetTrace(err); te != nil {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// Attempts returns the highest attempt number in the trace.
func (e *TraceableError) Attempts() int {
	n := 0
	for _, entry := range e.Trace {
		n = max(n, entry.Attempt)
	}
	return n
}

// FormatTrace renders the trace one entry per line, grouped by attempt:
//
//	#1 > frame 55 FF 00 10 EF 10 EF (Ping)
//	#1 < echo  55 FF 00 10 EF 10 EF
//	#1 - timeout (7 bytes buffered)
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d attempts, %d entries):\n",
		e.Transport, e.Port, e.Attempts(), len(e.Trace))

	for _, entry := range e.Trace {
		switch {
		case entry.Part == PartTimeout:
			_, _ = fmt.Fprintf(&sb, "  #%d - timeout", entry.Attempt)
		case entry.Direction == TraceTX:
			_, _ = fmt.Fprintf(&sb, "  #%d > %-5s %s", entry.Attempt, entry.Part, formatHexBytes(entry.Data))
		default:
			_, _ = fmt.Fprintf(&sb, "  #%d < %-5s %s", entry.Attempt, entry.Part, formatHexBytes(entry.Data))
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, " (%s)", entry.Note)
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values,
// shortening long slices.
func formatHexBytes(data []byte) string {
	const maxShown = 32
	switch {
	case len(data) == 0:
		return "(empty)"
	case len(data) > maxShown:
		return fmt.Sprintf("% X ... (%d bytes total)", data[:maxShown], len(data))
	default:
		return fmt.Sprintf("% X", data)
	}
}

// ExchangeTrace records the wire traffic of one exchange over all of its
// attempts. Inbound bytes are split at the echo boundary: the first
// len(frame) bytes of an attempt are the echo, the rest is the reply.
// It keeps at most maxSize entries, dropping the oldest.
type ExchangeTrace struct {
	transport string
	port      string
	frame     []byte
	entries   []TraceEntry
	maxSize   int
	attempt   int
	received  int
}

// NewExchangeTrace creates a trace for the exchange of frame.
func NewExchangeTrace(transport, port string, frame []byte, maxSize int) *ExchangeTrace {
	if maxSize <= 0 {
		maxSize = defaultTraceDepth
	}
	return &ExchangeTrace{
		transport: transport,
		port:      port,
		frame:     frame,
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
	}
}

// StartAttempt records the frame going out on attempt n and resets the echo
// boundary.
func (t *ExchangeTrace) StartAttempt(n int, note string) {
	t.attempt = n
	t.received = 0
	t.record(TraceTX, PartFrame, t.frame, note)
}

// Received records bytes read during the current attempt.
func (t *ExchangeTrace) Received(data []byte) {
	if echoLeft := len(t.frame) - t.received; echoLeft > 0 && len(data) > 0 {
		n := min(echoLeft, len(data))
		t.record(TraceRX, PartEcho, data[:n], "")
		t.received += n
		data = data[n:]
	}
	if len(data) > 0 {
		t.record(TraceRX, PartReply, data, "")
		t.received += len(data)
	}
}

// Timeout records a read that returned nothing.
func (t *ExchangeTrace) Timeout() {
	t.record(TraceRX, PartTimeout, nil, fmt.Sprintf("%d bytes buffered", t.received))
}

func (t *ExchangeTrace) record(dir TraceDirection, part TracePart, data []byte, note string) {
	entry := TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Part:      part,
		Note:      note,
		Data:      append([]byte(nil), data...),
		Attempt:   t.attempt,
	}

	if len(t.entries) >= t.maxSize {
		copy(t.entries, t.entries[1:])
		t.entries[len(t.entries)-1] = entry
		return
	}
	t.entries = append(t.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (t *ExchangeTrace) Entries() []TraceEntry {
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// WrapError attaches the trace to err. Returns nil if err is nil.
func (t *ExchangeTrace) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Transport: t.transport,
		Port:      t.port,
		Trace:     t.Entries(),
	}
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}

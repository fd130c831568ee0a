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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pingFrame = []byte{0x55, 0xFF, 0x00, 0x10, 0xEF, 0x10, 0xEF}

func TestExchangeTrace_SplitsEchoAndReply(t *testing.T) {
	t.Parallel()

	tr := NewExchangeTrace("mock", "/dev/null", pingFrame, 0)
	tr.StartAttempt(1, "Ping")
	tr.Received(pingFrame[:4])
	tr.Received([]byte{0x10, 0xEF, 0x10, 0xEF, 0x55})
	tr.Received([]byte{0xFF})
	tr.Timeout()

	entries := tr.Entries()
	require.Len(t, entries, 6)

	assert.Equal(t, TraceTX, entries[0].Direction)
	assert.Equal(t, PartFrame, entries[0].Part)
	assert.Equal(t, pingFrame, entries[0].Data)
	assert.Equal(t, "Ping", entries[0].Note)

	assert.Equal(t, PartEcho, entries[1].Part)
	assert.Equal(t, pingFrame[:4], entries[1].Data)
	assert.Equal(t, PartEcho, entries[2].Part)
	assert.Equal(t, pingFrame[4:], entries[2].Data)
	assert.Equal(t, PartReply, entries[3].Part)
	assert.Equal(t, []byte{0x55}, entries[3].Data)
	assert.Equal(t, PartReply, entries[4].Part)
	assert.Equal(t, []byte{0xFF}, entries[4].Data)

	assert.Equal(t, PartTimeout, entries[5].Part)
	assert.Equal(t, "9 bytes buffered", entries[5].Note)
	for _, e := range entries {
		assert.Equal(t, 1, e.Attempt)
	}
}

func TestExchangeTrace_AttemptsResetEchoBoundary(t *testing.T) {
	t.Parallel()

	tr := NewExchangeTrace("mock", "", pingFrame, 0)
	tr.StartAttempt(1, "")
	tr.Received(pingFrame)
	tr.Timeout()
	tr.StartAttempt(2, "")
	tr.Received(pingFrame[:2])

	entries := tr.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, 2, entries[3].Attempt)
	assert.Equal(t, PartFrame, entries[3].Part)
	assert.Equal(t, PartEcho, entries[4].Part, "second attempt starts with echo again")
	assert.Equal(t, 2, entries[4].Attempt)
}

func TestExchangeTrace_DropsOldest(t *testing.T) {
	t.Parallel()

	tr := NewExchangeTrace("mock", "", pingFrame, 2)
	tr.StartAttempt(1, "")
	tr.StartAttempt(2, "")
	tr.StartAttempt(3, "")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Attempt)
	assert.Equal(t, 3, entries[1].Attempt)
}

func TestExchangeTrace_CopiesData(t *testing.T) {
	t.Parallel()

	tr := NewExchangeTrace("mock", "", []byte{0x55}, 0)
	data := []byte{0xAA, 0xBB}
	tr.Received(data)
	data[0] = 0x00
	data[1] = 0x00

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []byte{0xAA}, entries[0].Data)
	assert.Equal(t, []byte{0xBB}, entries[1].Data)
}

func TestExchangeTrace_WrapError(t *testing.T) {
	t.Parallel()

	tr := NewExchangeTrace("uart", "/dev/ttyUSB0", pingFrame, 8)
	require.NoError(t, tr.WrapError(nil))

	tr.StartAttempt(1, "Ping")
	tr.Received(pingFrame)
	tr.Timeout()
	tr.StartAttempt(2, "Ping")
	tr.Timeout()

	err := fmt.Errorf("sync: %w", tr.WrapError(ErrTransportTimeout))
	require.ErrorIs(t, err, ErrTransportTimeout)

	te := GetTrace(err)
	require.NotNil(t, te)
	assert.Equal(t, "uart", te.Transport)
	assert.Equal(t, 2, te.Attempts())
	assert.Len(t, te.Trace, 5)

	out := te.FormatTrace()
	assert.Contains(t, out, "[uart:/dev/ttyUSB0] Wire trace (2 attempts, 5 entries)")
	assert.Contains(t, out, "  #1 > frame 55 FF 00 10 EF 10 EF (Ping)\n")
	assert.Contains(t, out, "  #1 < echo  55 FF 00 10 EF 10 EF\n")
	assert.Contains(t, out, "  #1 - timeout (7 bytes buffered)\n")
	assert.Contains(t, out, "  #2 - timeout (0 bytes buffered)\n")
}

func TestTraceEntry_String(t *testing.T) {
	t.Parallel()

	e := TraceEntry{Direction: TraceRX, Part: PartReply, Data: []byte{0xEF, 0x10}, Attempt: 2}
	assert.True(t, strings.HasSuffix(e.String(), "] #2 RX reply: EF 10"), e.String())

	e = TraceEntry{Direction: TraceRX, Part: PartTimeout, Attempt: 1, Note: "0 bytes buffered"}
	assert.True(t, strings.HasSuffix(e.String(), "] #1 RX timeout (0 bytes buffered)"), e.String())
}

func TestGetTrace_Absent(t *testing.T) {
	t.Parallel()

	assert.Nil(t, GetTrace(errors.New("plain")))
	te := &TraceableError{Err: ErrLinkClosed, Transport: "mock", Port: "x"}
	assert.Equal(t, "[mock:x] (no trace data)", te.FormatTrace())
	assert.Equal(t, 0, te.Attempts())
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "01 AB", formatHexBytes([]byte{0x01, 0xAB}))

	long := formatHexBytes(make([]byte, 40))
	assert.True(t, strings.HasPrefix(long, "00 00"))
	assert.True(t, strings.HasSuffix(long, "00 ... (40 bytes total)"))
}

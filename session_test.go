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
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-rcx/internal/frame"
)

// newTestSession creates a session on a fresh mock transport.
func newTestSession(t *testing.T, opts ...Option) (*Session, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	s, err := New(mock, opts...)
	require.NoError(t, err)
	return s, mock
}

// ack answers every command with its complement opcode and status 0.
func ack(cmd []byte) []byte {
	return []byte{^cmd[0], 0x00}
}

// sentCommands decodes every frame written to the mock.
func sentCommands(t *testing.T, mock *MockTransport) [][]byte {
	t.Helper()
	writes := mock.Writes()
	out := make([][]byte, 0, len(writes))
	for _, w := range writes {
		cmd, err := frame.Decode(w)
		require.NoError(t, err)
		out = append(out, cmd)
	}
	return out
}

// sentOpcodes returns the opcodes written, with the duplicate bit cleared.
func sentOpcodes(t *testing.T, mock *MockTransport) []byte {
	t.Helper()
	cmds := sentCommands(t, mock)
	ops := make([]byte, len(cmds))
	for i, c := range cmds {
		ops[i] = c[0] &^ duplicateBit
	}
	return ops
}

// echoWith returns a handler that echoes the frame followed by tail.
func echoWith(tail func(written []byte) []byte) func([]byte) []byte {
	return func(written []byte) []byte {
		out := append([]byte(nil), written...)
		return append(out, tail(written)...)
	}
}

func goodReply(t *testing.T, payload ...byte) []byte {
	t.Helper()
	b, err := frame.Build(payload)
	require.NoError(t, err)
	return b
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestSession(t)
		assert.Equal(t, DefaultRetryCount, s.config.RetryConfig.MaxAttempts)
		assert.Equal(t, DefaultChunkSize, s.config.ChunkSize)
		assert.Equal(t, frame.DefaultMaxResponseLength, s.config.MaxResponseLength)
		assert.False(t, s.IsSynced())
	})

	t.Run("nil transport", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil)
		require.ErrorIs(t, err, ErrInvalidOption)
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()
		for _, opt := range []Option{
			WithRetryCount(0),
			WithChunkSize(0),
			WithChunkSize(MaxChunkSize + 1),
			WithMaxResponseLength(frame.MinReplyLength - 1),
			WithTraceDepth(0),
		} {
			_, err := New(NewMockTransport(), opt)
			require.ErrorIs(t, err, ErrInvalidOption)
		}
	})

	t.Run("chunk size against receive buffer", func(t *testing.T) {
		t.Parallel()

		// a 2035-byte chunk echoes as 4087 bytes and its reply adds 9: 4096
		tests := []struct {
			name    string
			opts    []Option
			wantErr bool
		}{
			{name: "largest chunk for default buffer", opts: []Option{WithChunkSize(2035)}},
			{name: "one byte too many", opts: []Option{WithChunkSize(2036)}, wantErr: true},
			{name: "chunk needing more than default", opts: []Option{WithChunkSize(2100)}, wantErr: true},
			{
				name: "larger buffer set after chunk size",
				opts: []Option{WithChunkSize(2100), WithMaxResponseLength(4300)},
			},
			{name: "small buffer", opts: []Option{WithMaxResponseLength(60)}, wantErr: true},
			{name: "max chunk size", opts: []Option{WithChunkSize(MaxChunkSize)}, wantErr: true},
		}
		for _, tt := range tests {
			_, err := New(NewMockTransport(), tt.opts...)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOption, tt.name)
				assert.Contains(t, err.Error(), "receive buffer", tt.name)
			} else {
				require.NoError(t, err, tt.name)
			}
		}
	})

	t.Run("large chunk transfers with a large enough buffer", func(t *testing.T) {
		t.Parallel()
		s, mock := newTestSession(t, WithChunkSize(2100), WithMaxResponseLength(4300))
		mock.RespondWith(ack)

		require.NoError(t, s.Transfer(context.Background(), make([]byte, 2100), func(n int) Command {
			return BeginTaskCommand(0, n)
		}, nil, CheckDownloadReply))
		assert.Equal(t, 2, mock.WriteCount())
	})

	t.Run("options applied", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestSession(t,
			WithRetryCount(5),
			WithChunkSize(8),
			WithMaxResponseLength(64),
			WithTraceDepth(4),
			WithPortName("/dev/ttyUSB0"),
		)
		assert.Equal(t, 5, s.config.RetryConfig.MaxAttempts)
		assert.Equal(t, 8, s.config.ChunkSize)
		assert.Equal(t, 64, s.config.MaxResponseLength)
		assert.Equal(t, 4, s.config.TraceDepth)
		assert.Equal(t, "/dev/ttyUSB0", s.config.PortName)
	})
}

func TestExchange_Success(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(func(cmd []byte) []byte { return []byte{^cmd[0], 0x2A} })

	reply, err := s.Exchange(context.Background(), BatteryLevelCommand(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCF, 0x2A}, reply)
	assert.Equal(t, 1, mock.WriteCount())
	assert.Equal(t, 1, mock.FlushCount())
}

func TestExchange_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	calls := 0
	mock.SetHandler(echoWith(func([]byte) []byte {
		calls++
		resp := goodReply(t, 0xEF)
		if calls <= 2 {
			resp[len(resp)-2]++ // checksum no longer matches
			resp[len(resp)-1]--
		}
		return resp
	}))

	reply, err := s.Exchange(context.Background(), PingCommand(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF}, reply)
	assert.Equal(t, 3, mock.WriteCount())
}

func TestExchange_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.SetHandler(echoWith(func([]byte) []byte { return nil }))

	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, DefaultRetryCount, mock.WriteCount())

	trace := GetTrace(err)
	require.NotNil(t, trace)
	assert.Equal(t, DefaultRetryCount, trace.Attempts())
	require.Len(t, trace.Trace, 3*DefaultRetryCount)
	for i, entry := range trace.Trace {
		assert.Equal(t, i/3+1, entry.Attempt, "entry %d", i)
		assert.Equal(t, []TracePart{PartFrame, PartEcho, PartTimeout}[i%3], entry.Part, "entry %d", i)
	}
	assert.Contains(t, trace.FormatTrace(), "#3 - timeout (7 bytes buffered)")
}

func TestExchange_TraceSplitsEchoAndReply(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t, WithRetryCount(2))
	bad := goodReply(t, 0xEF)
	bad[len(bad)-2]++
	bad[len(bad)-1]--
	mock.SetHandler(echoWith(func([]byte) []byte { return bad }))

	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.ErrorIs(t, err, ErrChecksumMismatch)

	trace := GetTrace(err)
	require.NotNil(t, trace)
	wire := mock.Writes()[0]

	// echo and reply arrive in one read and are recorded separately
	require.Len(t, trace.Trace, 8)
	for attempt := 1; attempt <= 2; attempt++ {
		entries := trace.Trace[(attempt-1)*4 : attempt*4]
		assert.Equal(t, PartFrame, entries[0].Part)
		assert.Equal(t, TraceTX, entries[0].Direction)
		assert.Equal(t, wire, entries[0].Data)
		assert.Equal(t, PartEcho, entries[1].Part)
		assert.Equal(t, wire, entries[1].Data)
		assert.Equal(t, PartReply, entries[2].Part)
		assert.Equal(t, bad, entries[2].Data)
		assert.Equal(t, PartTimeout, entries[3].Part)
		for _, e := range entries {
			assert.Equal(t, attempt, e.Attempt)
		}
	}
}

func TestExchange_RetryResendsIdenticalBytes(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.SetHandler(echoWith(func([]byte) []byte { return nil }))

	_, err := s.Exchange(context.Background(), SelectProgramCommand(2), true)
	require.Error(t, err)

	writes := mock.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, writes[0], writes[1])
	assert.Equal(t, writes[0], writes[2])
}

func TestExchange_NoRetry(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	_, err := s.Exchange(context.Background(), PingCommand(), false)
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 1, mock.WriteCount())
}

func TestExchange_CustomRetryCount(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t, WithRetryCount(5))
	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.Error(t, err)
	assert.Equal(t, 5, mock.WriteCount())
}

func TestExchange_LinkClosed(t *testing.T) {
	t.Parallel()

	t.Run("session closed", func(t *testing.T) {
		t.Parallel()
		s, mock := newTestSession(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err := s.Exchange(context.Background(), PingCommand(), true)
		require.ErrorIs(t, err, ErrLinkClosed)
		assert.Equal(t, 0, mock.WriteCount())
		assert.Equal(t, 0, mock.DiscardCount())
		require.ErrorIs(t, s.Sync(context.Background()), ErrLinkClosed)
	})

	t.Run("transport disconnected", func(t *testing.T) {
		t.Parallel()
		s, mock := newTestSession(t)
		require.NoError(t, mock.Close())

		_, err := s.Exchange(context.Background(), PingCommand(), true)
		require.ErrorIs(t, err, ErrLinkClosed)
		assert.Equal(t, 0, mock.ReadCount())
	})
}

func TestExchange_InvalidCommand(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	_, err := s.Exchange(context.Background(), Command{}, true)
	require.ErrorIs(t, err, ErrInvalidCommand)
	assert.Equal(t, 0, mock.WriteCount())
	assert.Equal(t, byte(0), s.encoder.LastOpcode())
}

func TestExchange_DrainsStaleInput(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(ack)
	mock.InjectInbound([]byte{0x55, 0xFF, 0x00, 0x12, 0xED})

	_, err := s.Exchange(context.Background(), StopAllCommand(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.DiscardCount())
}

func TestExchange_DrainsBeforeEveryAttempt(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.Error(t, err)
	assert.Equal(t, 3, mock.DiscardCount())
}

func TestExchange_FragmentedReads(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(func(cmd []byte) []byte { return []byte{^cmd[0], 0x34, 0x12} })
	mock.SetReadChunk(1)

	reply, err := s.Exchange(context.Background(), BatteryLevelCommand(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCF, 0x34, 0x12}, reply)
}

func TestExchange_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tail    func(t *testing.T, written []byte) []byte
		want    error
		name    string
		corrupt bool
	}{
		{
			name:    "echo mismatch",
			corrupt: true,
			tail:    func(t *testing.T, _ []byte) []byte { return goodReply(t, 0xEF) },
			want:    ErrEchoMismatch,
		},
		{
			name: "bad header",
			tail: func(t *testing.T, _ []byte) []byte {
				r := goodReply(t, 0xEF)
				r[0] = 0xAA
				return r
			},
			want: ErrBadHeader,
		},
		{
			name: "corrupt shadow",
			tail: func(t *testing.T, _ []byte) []byte {
				r := goodReply(t, 0xEF, 0x01)
				r[4] ^= 0x01
				return r
			},
			want: ErrCorruptResponse,
		},
		{
			name: "checksum mismatch",
			tail: func(t *testing.T, _ []byte) []byte {
				r := goodReply(t, 0xEF)
				r[len(r)-2]++
				r[len(r)-1]--
				return r
			},
			want: ErrChecksumMismatch,
		},
		{
			name: "checksum shadow mismatch",
			tail: func(t *testing.T, _ []byte) []byte {
				r := goodReply(t, 0xEF)
				r[len(r)-1] ^= 0x01
				return r
			},
			want: ErrChecksumShadowMismatch,
		},
		{
			name: "odd length",
			tail: func(t *testing.T, _ []byte) []byte {
				return append(goodReply(t, 0xEF), 0x00)
			},
			want: ErrMalformedLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock := newTestSession(t)
			mock.SetHandler(func(written []byte) []byte {
				echo := append([]byte(nil), written...)
				if tt.corrupt {
					echo[3] ^= 0x01
				}
				return append(echo, tt.tail(t, written)...)
			})

			_, err := s.Exchange(context.Background(), PingCommand(), true)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, DefaultRetryCount, mock.WriteCount())
		})
	}
}

func TestExchange_TruncatedReplyRecoveredByLaterBytes(t *testing.T) {
	t.Parallel()

	// A reply longer than the minimum first reads as malformed; the session
	// keeps reading until the full frame validates.
	s, mock := newTestSession(t)
	mock.RespondWith(func(cmd []byte) []byte { return []byte{^cmd[0], 0x01, 0x02, 0x03} })
	mock.SetReadChunk(3)

	reply, err := s.Exchange(context.Background(), BatteryLevelCommand(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCF, 0x01, 0x02, 0x03}, reply)
}

func TestExchange_WriteErrorIsRetried(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.SetWriteError(errors.New("tower busy"))

	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "write", te.Op)
	assert.Equal(t, 3, mock.DiscardCount())
}

func TestExchange_FatalReadErrorStopsRetry(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.SetReadError(io.EOF)

	_, err := s.Exchange(context.Background(), PingCommand(), true)
	require.ErrorIs(t, err, io.EOF)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, mock.WriteCount())
}

func TestExchange_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	// one-byte chunks fit in 28 bytes, a 20-byte command echo does not
	s, mock := newTestSession(t, WithChunkSize(1), WithMaxResponseLength(28))
	mock.RespondWith(ack)

	_, err := s.Exchange(context.Background(), NewCommand(OpPlaySound, make([]byte, 19)...), false)
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestExchange_CancelledContext(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Exchange(ctx, PingCommand(), true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.WriteCount())
}

func TestExchange_DuplicateOpcodeCorrection(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(ack)

	for range 3 {
		_, err := s.Exchange(context.Background(), PingCommand(), true)
		require.NoError(t, err)
	}
	_, err := s.Exchange(context.Background(), StopAllCommand(), true)
	require.NoError(t, err)

	cmds := sentCommands(t, mock)
	require.Len(t, cmds, 4)
	assert.Equal(t, byte(0x10), cmds[0][0])
	assert.Equal(t, byte(0x18), cmds[1][0])
	assert.Equal(t, byte(0x10), cmds[2][0])
	assert.Equal(t, byte(0x50), cmds[3][0])
}

func TestExchange_Concurrent(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(func(cmd []byte) []byte { return append([]byte{^cmd[0]}, cmd[1:]...) })

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := s.Exchange(context.Background(), SelectProgramCommand(byte(i)), true)
			if err == nil && (len(reply) != 2 || reply[1] != byte(i)) {
				err = errors.New("reply belongs to another exchange")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, len(errs), mock.WriteCount())
}

func TestSync(t *testing.T) {
	t.Parallel()

	t.Run("pings once", func(t *testing.T) {
		t.Parallel()
		s, mock := newTestSession(t)
		mock.RespondWith(ack)

		require.NoError(t, s.Sync(context.Background()))
		require.NoError(t, s.Sync(context.Background()))
		assert.True(t, s.IsSynced())
		assert.Equal(t, []byte{OpPing}, sentOpcodes(t, mock))
	})

	t.Run("failure leaves session unsynced", func(t *testing.T) {
		t.Parallel()
		s, mock := newTestSession(t)

		require.ErrorIs(t, s.Sync(context.Background()), ErrTransportTimeout)
		assert.False(t, s.IsSynced())

		mock.RespondWith(ack)
		require.NoError(t, s.Sync(context.Background()))
		assert.True(t, s.IsSynced())
	})
}

func TestSession_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		run  func(context.Context, *Session) error
		name string
		want [][]byte
	}{
		{
			name: "stop all",
			run:  func(ctx context.Context, s *Session) error { return s.StopAll(ctx) },
			want: [][]byte{{0x50}},
		},
		{
			name: "select program",
			run:  func(ctx context.Context, s *Session) error { return s.SelectProgram(ctx, 3) },
			want: [][]byte{{0x91, 0x03}},
		},
		{
			name: "delete tasks and subs",
			run: func(ctx context.Context, s *Session) error {
				if err := s.DeleteTasks(ctx); err != nil {
					return err
				}
				return s.DeleteSubs(ctx)
			},
			want: [][]byte{{0x40}, {0x70}},
		},
		{
			name: "play sound pings first",
			run:  func(ctx context.Context, s *Session) error { return s.PlaySound(ctx, 5) },
			want: [][]byte{{0x10}, {0x51, 0x05}},
		},
		{
			name: "start task pings first",
			run:  func(ctx context.Context, s *Session) error { return s.StartTask(ctx, 0) },
			want: [][]byte{{0x10}, {0x71, 0x00}},
		},
		{
			name: "stop task pings first",
			run:  func(ctx context.Context, s *Session) error { return s.StopTask(ctx, 2) },
			want: [][]byte{{0x10}, {0x81, 0x02}},
		},
		{
			name: "unlock",
			run:  func(ctx context.Context, s *Session) error { return s.Unlock(ctx) },
			want: [][]byte{{0x1D, 0x01, 0x03, 0x05, 0x07, 0x0B}},
		},
		{
			name: "ping",
			run:  func(ctx context.Context, s *Session) error { return s.Ping(ctx) },
			want: [][]byte{{0x10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock := newTestSession(t)
			mock.RespondWith(ack)

			require.NoError(t, tt.run(context.Background(), s))
			assert.Equal(t, tt.want, sentCommands(t, mock))
		})
	}
}

func TestBatteryLevel(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(func(cmd []byte) []byte { return []byte{^cmd[0], 0x10, 0x23} })

	mv, err := s.BatteryLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0x2310, mv)

	mock.RespondWith(func(cmd []byte) []byte { return []byte{^cmd[0]} })
	_, err = s.BatteryLevel(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSendRaw(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	mock.RespondWith(ack)

	in := []byte{0x21, 0x81}
	reply, err := s.SendRaw(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0x00}, reply)
	assert.Equal(t, []byte{0x21, 0x81}, in)
}

// gatedTransport holds every Read until gate is closed, outside the mock's
// own lock.
type gatedTransport struct {
	*MockTransport
	gate    chan struct{}
	reading chan struct{}
	once    sync.Once
}

func (g *gatedTransport) Read(p []byte) (int, error) {
	g.once.Do(func() { close(g.reading) })
	<-g.gate
	return g.MockTransport.Read(p)
}

func TestSetTimeout_WaitsForExchange(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.RespondWith(ack)
	gt := &gatedTransport{MockTransport: mock, gate: make(chan struct{}), reading: make(chan struct{})}
	s, err := New(gt)
	require.NoError(t, err)

	exchanged := make(chan error, 1)
	go func() {
		_, err := s.Exchange(context.Background(), PingCommand(), false)
		exchanged <- err
	}()
	<-gt.reading

	set := make(chan error, 1)
	go func() { set <- s.SetTimeout(50 * time.Millisecond) }()

	select {
	case <-set:
		t.Fatal("read timeout changed while an exchange was reading")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, time.Second, mock.Timeout())

	close(gt.gate)
	require.NoError(t, <-exchanged)
	require.NoError(t, <-set)
	assert.Equal(t, 50*time.Millisecond, mock.Timeout())
}

func TestSetTimeout_Closed(t *testing.T) {
	t.Parallel()

	s, mock := newTestSession(t)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.SetTimeout(time.Millisecond), ErrLinkClosed)
	assert.Equal(t, time.Second, mock.Timeout())
}

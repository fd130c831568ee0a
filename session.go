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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-rcx/internal/frame"
	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// readChunkSize is the size of a single Read from the transport
const readChunkSize = 64

// portNamer is implemented by transports that know their device path.
type portNamer interface {
	PortName() string
}

// Session owns one link to an RCX through an IR tower. It allows a single
// outstanding request at a time: every exchange holds the link lock from the
// input drain through the last read of the last attempt.
//
// Thread Safety: Session is safe for concurrent use. Exchanges from different
// goroutines are serialized, and transfers are serialized as a whole so the
// chunks of two downloads never interleave.
type Session struct {
	transport Transport
	config    *SessionConfig
	encoder   *Encoder
	mu        syncutil.Mutex // guards the link, encoder, synced and closed
	xferMu    syncutil.Mutex // held for the length of a transfer
	synced    bool
	closed    bool
}

// New creates a session on an already opened transport.
func New(transport Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidOption)
	}

	s := &Session{
		transport: transport,
		config:    DefaultSessionConfig(),
		encoder:   NewEncoder(),
	}
	if pn, ok := transport.(portNamer); ok {
		s.config.PortName = pn.PortName()
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.config.validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Transport returns the underlying transport
func (s *Session) Transport() Transport {
	return s.transport
}

// SetTimeout sets the per-read timeout on the transport. It waits for an
// exchange in progress to finish.
func (s *Session) SetTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrLinkClosed
	}
	if err := s.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// IsSynced reports whether the handshake has succeeded on this session.
func (s *Session) IsSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// Close closes the transport. Every later call fails with ErrLinkClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Exchange sends cmd and returns the RCX reply payload. With allowRetry the
// exchange is attempted up to the configured retry count, otherwise once.
// The command is framed once and retries resend identical bytes.
func (s *Session) Exchange(ctx context.Context, cmd Command, allowRetry bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeLocked(ctx, cmd, allowRetry)
}

func (s *Session) exchangeLocked(ctx context.Context, cmd Command, allowRetry bool) ([]byte, error) {
	if s.closed || !s.transport.IsConnected() {
		return nil, ErrLinkClosed
	}
	if cmd.Len() == 0 {
		return nil, ErrInvalidCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exchange cancelled: %w", err)
	}

	wire, err := s.encoder.Encode(cmd.data)
	if err != nil {
		return nil, err
	}

	summary := commandSummary(cmd.data)
	trace := NewExchangeTrace(string(s.transport.Type()), s.config.PortName, wire, s.config.TraceDepth)
	start := time.Now()

	var reply []byte
	attempts := s.config.RetryConfig.attempts(allowRetry)
	err = RetryWithConfig(ctx, attempts, func(attempt int) error {
		payload, attemptErr := s.attempt(attempt, wire, summary, trace)
		if attemptErr != nil {
			Debugf("%s: attempt %d/%d: %v", summary, attempt, attempts, attemptErr)
			return attemptErr
		}
		reply = payload
		return nil
	})
	if err != nil {
		return nil, trace.WrapError(fmt.Errorf("%s: %w", OpcodeName(cmd.Opcode()), err))
	}

	debugDuration(summary, start)
	return reply, nil
}

// attempt drains stale input, writes the frame and reads until the reply
// validates or the link goes quiet.
func (s *Session) attempt(n int, wire []byte, note string, trace *ExchangeTrace) ([]byte, error) {
	if err := s.transport.DiscardInput(); err != nil {
		return nil, s.ioError("drain", err)
	}

	trace.StartAttempt(n, note)
	debugWire(TraceTX, s.config.PortName, wire, note)

	n, err := s.transport.Write(wire)
	if err != nil {
		return nil, s.ioError("write", err)
	}
	if n != len(wire) {
		return nil, NewTransportWriteError("write", s.config.PortName)
	}
	if err := s.transport.Flush(); err != nil {
		return nil, s.ioError("flush", err)
	}

	return s.readReply(wire, trace)
}

// readReply accumulates inbound bytes and revalidates after every read. A
// verdict that more bytes could still change is kept until the link goes
// quiet; any other verdict ends the attempt at once.
func (s *Session) readReply(sent []byte, trace *ExchangeTrace) ([]byte, error) {
	buf := make([]byte, 0, len(sent)+frame.MinReplyLength)
	chunk := make([]byte, readChunkSize)
	var verdict error

	for {
		n, err := s.transport.Read(chunk)
		if err != nil {
			return nil, s.ioError("read", err)
		}
		if n == 0 {
			trace.Timeout()
			if verdict != nil {
				return nil, verdict
			}
			return nil, NewTimeoutError("read", s.config.PortName)
		}

		trace.Received(chunk[:n])
		debugWire(TraceRX, s.config.PortName, chunk[:n], "")

		if len(buf)+n > s.config.MaxResponseLength {
			return nil, NewTransportError("read", s.config.PortName, ErrResponseTooLarge, ErrorTypeTransient)
		}
		buf = append(buf, chunk[:n]...)

		payload, err := frame.Validate(sent, buf)
		switch {
		case err == nil:
			return payload, nil
		case errors.Is(err, frame.ErrIncomplete):
			continue
		case frame.Truncated(err):
			verdict = err
		default:
			return nil, err
		}
	}
}

// ioError classifies a transport failure: errors that mean the device is
// gone are permanent, anything else may clear up on the next attempt.
func (s *Session) ioError(op string, err error) error {
	errType := ErrorTypeTransient
	if IsFatal(err) {
		errType = ErrorTypePermanent
	}
	return NewTransportError(op, s.config.PortName, err, errType)
}

// Sync performs the one-time handshake: a ping. It is a no-op once it has
// succeeded on this session.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx)
}

func (s *Session) syncLocked(ctx context.Context) error {
	if s.closed {
		return ErrLinkClosed
	}
	if s.synced {
		return nil
	}
	if _, err := s.exchangeLocked(ctx, PingCommand(), true); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	s.synced = true
	Debugln("link synchronized")
	return nil
}

// send runs a command whose reply carries nothing but the acknowledgement.
func (s *Session) send(ctx context.Context, cmd Command) error {
	_, err := s.Exchange(ctx, cmd, true)
	return err
}

// sendAfterPing pings and sends cmd under one hold of the link lock, which
// wakes the RCX before a command it would otherwise miss.
func (s *Session) sendAfterPing(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.exchangeLocked(ctx, PingCommand(), true); err != nil {
		return err
	}
	_, err := s.exchangeLocked(ctx, cmd, true)
	return err
}

// Ping checks that the RCX answers.
func (s *Session) Ping(ctx context.Context) error {
	return s.send(ctx, PingCommand())
}

// StopAll stops every running task.
func (s *Session) StopAll(ctx context.Context) error {
	return s.send(ctx, StopAllCommand())
}

// SelectProgram selects program slot prog (0..4).
func (s *Session) SelectProgram(ctx context.Context, prog byte) error {
	return s.send(ctx, SelectProgramCommand(prog))
}

// DeleteTasks deletes every task of the selected program.
func (s *Session) DeleteTasks(ctx context.Context) error {
	return s.send(ctx, DeleteTasksCommand())
}

// DeleteSubs deletes every subroutine of the selected program.
func (s *Session) DeleteSubs(ctx context.Context) error {
	return s.send(ctx, DeleteSubsCommand())
}

// PlaySound plays a system sound.
func (s *Session) PlaySound(ctx context.Context, sound byte) error {
	return s.sendAfterPing(ctx, PlaySoundCommand(sound))
}

// StartTask starts a task of the selected program.
func (s *Session) StartTask(ctx context.Context, task byte) error {
	return s.sendAfterPing(ctx, StartTaskCommand(task))
}

// StopTask stops a task of the selected program.
func (s *Session) StopTask(ctx context.Context, task byte) error {
	return s.sendAfterPing(ctx, StopTaskCommand(task))
}

// Unlock sends the firmware unlock key.
func (s *Session) Unlock(ctx context.Context) error {
	return s.send(ctx, UnlockCommand())
}

// BatteryLevel returns the battery voltage in millivolts.
func (s *Session) BatteryLevel(ctx context.Context) (int, error) {
	reply, err := s.Exchange(ctx, BatteryLevelCommand(), true)
	if err != nil {
		return 0, err
	}
	if len(reply) < 3 || !replyMatches(OpBatteryLevel, reply[0]) {
		return 0, fmt.Errorf("battery level: %w: % X", ErrInvalidResponse, reply)
	}
	return int(reply[1]) | int(reply[2])<<8, nil
}

// SendRaw exchanges arbitrary command bytes and returns the raw reply.
func (s *Session) SendRaw(ctx context.Context, data []byte) ([]byte, error) {
	return s.Exchange(ctx, RawCommand(data), true)
}

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
	"fmt"
	"time"
)

// Fragment is the kind of code block a download fills.
type Fragment int

const (
	// FragmentTask is a task slot (0..9)
	FragmentTask Fragment = iota
	// FragmentSub is a subroutine slot
	FragmentSub
)

func (f Fragment) String() string {
	switch f {
	case FragmentTask:
		return "task"
	case FragmentSub:
		return "subroutine"
	default:
		return fmt.Sprintf("fragment(%d)", int(f))
	}
}

// Progress describes how far a transfer has got. It is reported after every
// chunk the RCX acknowledged.
type Progress struct {
	// Sequence is the sequence number sent with the chunk; 0 marks the last
	Sequence uint16
	// Chunk counts acknowledged chunks from 1
	Chunk int
	// Chunks is the number of chunks in the transfer
	Chunks int
	// BytesSent is the payload acknowledged so far
	BytesSent int
	// Total is the payload length
	Total int
	// Elapsed is the time since the begin command was sent
	Elapsed time.Duration
}

// Percentage returns the share of the payload sent, 0 to 100.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.BytesSent) * 100 / float64(p.Total)
}

// ProgressFunc receives transfer progress. It runs on the transferring
// goroutine and should return quickly.
type ProgressFunc func(Progress)

// BeginFunc builds the command that announces a payload of length bytes.
type BeginFunc func(length int) Command

// Transfer sends payload in chunks after announcing it with begin. checkBegin
// vets the reply to the begin command and checkChunk the reply to each chunk;
// either may be nil. Chunks carry sequence numbers 1, 2, ... and the last
// chunk carries 0. The first failure aborts the transfer; a refusal from the
// RCX is returned without further attempts.
func (s *Session) Transfer(
	ctx context.Context,
	payload []byte,
	begin BeginFunc,
	checkBegin, checkChunk StatusCheck,
) error {
	s.xferMu.Lock()
	defer s.xferMu.Unlock()
	return s.transfer(ctx, payload, begin, checkBegin, checkChunk)
}

func (s *Session) transfer(
	ctx context.Context,
	payload []byte,
	begin BeginFunc,
	checkBegin, checkChunk StatusCheck,
) error {
	if begin == nil {
		return fmt.Errorf("%w: no begin command", ErrInvalidCommand)
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	start := time.Now()
	reply, err := s.Exchange(ctx, begin(len(payload)), true)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	if checkBegin != nil {
		if err := checkBegin(reply); err != nil {
			return err
		}
	}

	size := s.config.ChunkSize
	chunks := (len(payload) + size - 1) / size
	sent := 0

	for i := range chunks {
		end := min(sent+size, len(payload))
		seq := uint16(i + 1)
		if end == len(payload) {
			seq = 0
		}

		reply, err := s.Exchange(ctx, DownloadChunkCommand(seq, payload[sent:end]), true)
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, chunks, err)
		}
		if checkChunk != nil {
			if err := checkChunk(reply); err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, chunks, err)
			}
		}

		sent = end
		s.reportProgress(Progress{
			Sequence:  seq,
			Chunk:     i + 1,
			Chunks:    chunks,
			BytesSent: sent,
			Total:     len(payload),
			Elapsed:   time.Since(start),
		})
	}

	debugDuration(fmt.Sprintf("transferred %d bytes in %d chunks", len(payload), chunks), start)
	return nil
}

func (s *Session) reportProgress(p Progress) {
	Debugf("chunk %d/%d seq=%d %d/%d bytes", p.Chunk, p.Chunks, p.Sequence, p.BytesSent, p.Total)
	if s.config.Progress != nil {
		s.config.Progress(p)
	}
}

// DownloadFragment syncs the link and downloads data into one task or
// subroutine slot of the selected program.
func (s *Session) DownloadFragment(ctx context.Context, kind Fragment, index byte, data []byte) error {
	s.xferMu.Lock()
	defer s.xferMu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}
	return s.downloadFragment(ctx, kind, index, data)
}

func (s *Session) downloadFragment(ctx context.Context, kind Fragment, index byte, data []byte) error {
	var err error
	switch kind {
	case FragmentTask:
		err = s.transfer(ctx, data, func(n int) Command {
			return BeginTaskCommand(index, n)
		}, CheckBeginTaskReply, CheckDownloadReply)
	case FragmentSub:
		err = s.transfer(ctx, data, func(n int) Command {
			return BeginSubCommand(index, n)
		}, CheckBeginSubReply, CheckDownloadReply)
	default:
		return fmt.Errorf("%w: unknown fragment kind %d", ErrInvalidCommand, int(kind))
	}
	if err != nil {
		return fmt.Errorf("download %s %d: %w", kind, index, err)
	}
	return nil
}

// DownloadProgram replaces a program slot on the RCX with prog: it stops all
// tasks, selects the slot, clears its tasks and subroutines, downloads every
// subroutine and then every task in order, and plays the download sound.
// With run set, task 0 is started afterwards.
func (s *Session) DownloadProgram(ctx context.Context, prog *Program, run bool) error {
	if prog == nil {
		return fmt.Errorf("%w: nil program", ErrInvalidCommand)
	}

	s.xferMu.Lock()
	defer s.xferMu.Unlock()

	start := time.Now()
	if err := s.Sync(ctx); err != nil {
		return err
	}

	steps := []struct {
		run  func(context.Context) error
		name string
	}{
		{name: "stop all", run: s.StopAll},
		{name: "select program", run: func(ctx context.Context) error {
			return s.SelectProgram(ctx, prog.Number())
		}},
		{name: "delete tasks", run: s.DeleteTasks},
		{name: "delete subroutines", run: s.DeleteSubs},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	for i, code := range prog.Subs() {
		if err := s.downloadFragment(ctx, FragmentSub, byte(i), code); err != nil {
			return err
		}
	}
	for i, code := range prog.Tasks() {
		if err := s.downloadFragment(ctx, FragmentTask, byte(i), code); err != nil {
			return err
		}
	}

	if err := s.PlaySound(ctx, DownloadSound); err != nil {
		return fmt.Errorf("play sound: %w", err)
	}
	if run {
		if err := s.StartTask(ctx, 0); err != nil {
			return fmt.Errorf("start task: %w", err)
		}
	}

	debugDuration(fmt.Sprintf("program %d downloaded", prog.Number()+1), start)
	return nil
}

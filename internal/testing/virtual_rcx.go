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

// Package testing provides test utilities including a wire-level RCX
// simulator.
//
// The VirtualRCX type implements io.ReadWriter and behaves like an IR tower
// with an RCX in range: everything written is echoed back by the tower, and
// every complete frame is answered by the simulated brick with the
// complement of its opcode followed by the reply data.
//
// The brick filters repeats the way the firmware does: a frame whose opcode
// equals the previous one is taken as a retransmission, so the last reply is
// sent again and the command is not executed twice.
package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-rcx/internal/frame"
	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// RCX opcodes understood by the simulator
const (
	opPing          = 0x10
	opBatteryLevel  = 0x30
	opUnlock        = 0x1D
	opBeginTask     = 0x25
	opBeginSub      = 0x35
	opDownload      = 0x45
	opDeleteTasks   = 0x40
	opDeleteSubs    = 0x70
	opStopAll       = 0x50
	opPlaySound     = 0x51
	opStartTask     = 0x71
	opStopTask      = 0x81
	opSelectProgram = 0x91

	duplicateBit = 0x08
)

// Download status codes
const (
	statusOK                   = 0x00
	statusInsufficientMemory   = 0x01
	statusInvalidIndex         = 0x02
	statusBlockChecksum        = 0x03
	statusMissingDownloadStart = 0x06
)

// Simulator limits
const (
	// DefaultMemoryLimit is the program memory free on a fresh brick.
	DefaultMemoryLimit = 6000
	// DefaultBatteryMillivolts is the reported battery level.
	DefaultBatteryMillivolts = 9000

	programSlots = 5
	taskSlots    = 10
	subSlots     = 8
)

// Fault is an injectable misbehaviour of the link or the brick.
type Fault int

const (
	// FaultEchoCorruption flips a bit of the tower echo. The brick still
	// receives and executes the command.
	FaultEchoCorruption Fault = iota
	// FaultChecksum corrupts the reply checksum (its shadow stays valid).
	FaultChecksum
	// FaultShadow corrupts the shadow of the first reply byte.
	FaultShadow
	// FaultSilence executes the command but loses the reply.
	FaultSilence
	// FaultDeaf loses the command on the way to the brick; only the echo
	// comes back.
	FaultDeaf
)

var errUnknownFault = errors.New("unknown fault")

// ProgramSlot is the content of one program slot on the simulated brick.
type ProgramSlot struct {
	Tasks map[byte][]byte
	Subs  map[byte][]byte
}

// download is an announced transfer waiting for its chunks.
type download struct {
	data    []byte
	length  int
	nextSeq uint16
	index   byte
	isSub   bool
}

// VirtualRCX simulates an IR tower and RCX at the wire protocol level.
// It implements io.ReadWriter to plug directly into transport layer tests.
type VirtualRCX struct {
	faults      map[Fault]int
	active      *download
	rxBuffer    bytes.Buffer
	txBuffer    bytes.Buffer
	lastReply   []byte
	commandLog  [][]byte
	sounds      []byte
	running     map[byte]bool
	programs    [programSlots]ProgramSlot
	mu          syncutil.Mutex
	memoryLimit int
	memoryUsed  int
	battery     uint16
	program     byte
	lastOpcode  byte
	hasLast     bool
}

// NewVirtualRCX creates a simulator with empty program slots and program 0
// selected.
func NewVirtualRCX() *VirtualRCX {
	v := &VirtualRCX{
		faults:      make(map[Fault]int),
		running:     make(map[byte]bool),
		memoryLimit: DefaultMemoryLimit,
		battery:     DefaultBatteryMillivolts,
	}
	v.clearPrograms()
	return v
}

func (v *VirtualRCX) clearPrograms() {
	for i := range v.programs {
		v.programs[i] = ProgramSlot{Tasks: make(map[byte][]byte), Subs: make(map[byte][]byte)}
	}
	v.memoryUsed = 0
}

// Write implements io.Writer. The tower echoes the bytes at once; a complete
// frame is then handed to the brick.
func (v *VirtualRCX) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	echo := append([]byte(nil), data...)
	if v.takeFault(FaultEchoCorruption) && len(echo) > frame.HeaderLength {
		echo[frame.HeaderLength] ^= 0x01
	}
	v.txBuffer.Write(echo)

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader. An empty buffer reads as a timeout: (0, nil).
func (v *VirtualRCX) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// Discard drops any bytes waiting to be read by the host.
func (v *VirtualRCX) Discard() {
	v.mu.Lock()
	v.txBuffer.Reset()
	v.mu.Unlock()
}

// processReceivedData decodes the receive buffer as one frame. A frame that
// may still be arriving is kept; anything unrecoverable is dropped.
func (v *VirtualRCX) processReceivedData() {
	cmd, err := frame.Decode(v.rxBuffer.Bytes())
	if err != nil {
		if errors.Is(err, frame.ErrIncomplete) || frame.Truncated(err) {
			return
		}
		v.rxBuffer.Reset()
		return
	}
	v.rxBuffer.Reset()

	if v.takeFault(FaultDeaf) {
		return
	}
	v.commandLog = append(v.commandLog, append([]byte(nil), cmd...))

	var reply []byte
	if v.hasLast && cmd[0] == v.lastOpcode {
		reply = v.lastReply
	} else {
		reply = v.processCommand(cmd)
		v.lastReply = reply
	}
	v.lastOpcode = cmd[0]
	v.hasLast = true

	if v.takeFault(FaultSilence) {
		return
	}
	v.sendReply(reply)
}

func (v *VirtualRCX) sendReply(reply []byte) {
	out, err := frame.Build(reply)
	if err != nil {
		return
	}
	if v.takeFault(FaultChecksum) {
		out[len(out)-2]++
		out[len(out)-1]--
	}
	if v.takeFault(FaultShadow) {
		out[frame.HeaderLength+1] ^= 0x01
	}
	v.txBuffer.Write(out)
}

// processCommand executes cmd and returns the reply payload.
func (v *VirtualRCX) processCommand(cmd []byte) []byte {
	op := cmd[0]
	params := cmd[1:]
	reply := []byte{^op}

	switch op &^ duplicateBit {
	case opStopAll:
		clear(v.running)
	case opSelectProgram:
		if len(params) > 0 && params[0] < programSlots {
			v.program = params[0]
		}
	case opDeleteTasks:
		v.deleteFragments(v.programs[v.program].Tasks)
	case opDeleteSubs:
		v.deleteFragments(v.programs[v.program].Subs)
	case opPlaySound:
		if len(params) > 0 {
			v.sounds = append(v.sounds, params[0])
		}
	case opStartTask:
		if len(params) > 0 {
			v.running[params[0]] = true
		}
	case opStopTask:
		if len(params) > 0 {
			delete(v.running, params[0])
		}
	case opBatteryLevel:
		reply = append(reply, byte(v.battery), byte(v.battery>>8))
	case opBeginTask:
		reply = append(reply, v.beginDownload(params, false))
	case opBeginSub:
		reply = append(reply, v.beginDownload(params, true))
	case opDownload:
		reply = append(reply, v.receiveChunk(params))
	case opPing, opUnlock:
	}
	return reply
}

func (v *VirtualRCX) deleteFragments(m map[byte][]byte) {
	for k, code := range m {
		v.memoryUsed -= len(code)
		delete(m, k)
	}
}

// beginDownload handles BeginTask/BeginSub: 0, index, 0, lenLo, lenHi.
func (v *VirtualRCX) beginDownload(params []byte, isSub bool) byte {
	if len(params) < 5 {
		return statusInvalidIndex
	}
	index := params[1]
	length := int(params[3]) | int(params[4])<<8

	limit := byte(taskSlots)
	if isSub {
		limit = subSlots
	}
	if index >= limit {
		return statusInvalidIndex
	}
	if v.memoryUsed+length > v.memoryLimit {
		return statusInsufficientMemory
	}

	v.active = &download{index: index, isSub: isSub, length: length, nextSeq: 1}
	return statusOK
}

// receiveChunk handles Download: seqLo, seqHi, lenLo, lenHi, data, sum.
func (v *VirtualRCX) receiveChunk(params []byte) byte {
	if v.active == nil {
		return statusMissingDownloadStart
	}
	if len(params) < 5 {
		return statusBlockChecksum
	}

	seq := uint16(params[0]) | uint16(params[1])<<8
	n := int(params[2]) | int(params[3])<<8
	if len(params) != 5+n {
		return statusBlockChecksum
	}
	data := params[4 : 4+n]

	if frame.CalculateChecksum(data) != params[4+n] {
		return statusBlockChecksum
	}
	if seq != 0 && seq != v.active.nextSeq {
		return statusBlockChecksum
	}

	v.active.data = append(v.active.data, data...)
	v.active.nextSeq++
	if seq != 0 {
		return statusOK
	}

	d := v.active
	v.active = nil
	if len(d.data) != d.length {
		return statusBlockChecksum
	}

	slot := v.programs[v.program].Tasks
	if d.isSub {
		slot = v.programs[v.program].Subs
	}
	v.memoryUsed += len(d.data) - len(slot[d.index])
	slot[d.index] = d.data
	return statusOK
}

func (v *VirtualRCX) takeFault(f Fault) bool {
	if v.faults[f] == 0 {
		return false
	}
	v.faults[f]--
	return true
}

// InjectFault makes the next count exchanges suffer fault f.
func (v *VirtualRCX) InjectFault(f Fault, count int) error {
	if f < FaultEchoCorruption || f > FaultDeaf {
		return errUnknownFault
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults[f] += count
	return nil
}

// SetMemoryLimit sets the program memory available for downloads.
func (v *VirtualRCX) SetMemoryLimit(n int) {
	v.mu.Lock()
	v.memoryLimit = n
	v.mu.Unlock()
}

// SetBatteryLevel sets the reported battery voltage in millivolts.
func (v *VirtualRCX) SetBatteryLevel(mv uint16) {
	v.mu.Lock()
	v.battery = mv
	v.mu.Unlock()
}

// Program returns a copy of program slot n (0 based).
func (v *VirtualRCX) Program(n int) ProgramSlot {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := ProgramSlot{Tasks: make(map[byte][]byte), Subs: make(map[byte][]byte)}
	if n < 0 || n >= programSlots {
		return out
	}
	for k, code := range v.programs[n].Tasks {
		out.Tasks[k] = append([]byte(nil), code...)
	}
	for k, code := range v.programs[n].Subs {
		out.Subs[k] = append([]byte(nil), code...)
	}
	return out
}

// SelectedProgram returns the selected program slot.
func (v *VirtualRCX) SelectedProgram() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.program
}

// MemoryUsed returns the bytes held by downloaded code.
func (v *VirtualRCX) MemoryUsed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.memoryUsed
}

// Sounds returns the system sounds played so far.
func (v *VirtualRCX) Sounds() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.sounds...)
}

// IsRunning reports whether task is running.
func (v *VirtualRCX) IsRunning(task byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running[task]
}

// Commands returns every command the brick received, duplicates included,
// exactly as received.
func (v *VirtualRCX) Commands() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.commandLog))
	copy(out, v.commandLog)
	return out
}

// HasPendingResponse returns true if there is data waiting to be read.
func (v *VirtualRCX) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// Reset powers the brick off and on: programs, faults and history are lost.
func (v *VirtualRCX) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.clearPrograms()
	clear(v.faults)
	clear(v.running)
	v.active = nil
	v.lastReply = nil
	v.commandLog = nil
	v.sounds = nil
	v.program = 0
	v.hasLast = false
}

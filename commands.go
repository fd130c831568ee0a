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
	"strings"

	"github.com/ZaparooProject/go-rcx/internal/frame"
)

// RCX opcodes
const (
	// outputs
	OpOutputMode  byte = 0x21
	OpOutputPower byte = 0x13
	OpOutputDir   byte = 0xE1
	// inputs
	OpInputMode byte = 0x42
	OpInputType byte = 0x32
	// sound
	OpPlaySound byte = 0x51
	OpPlayTone  byte = 0x23
	// control flow
	OpTest      byte = 0x95
	OpJump      byte = 0x72
	OpSJump     byte = 0x27
	OpSetLoop   byte = 0x82
	OpCheckLoop byte = 0x92
	// misc
	OpDelay         byte = 0x43
	OpDisplay       byte = 0x33
	OpSendMessage   byte = 0xB2
	OpStartTask     byte = 0x71
	OpStopTask      byte = 0x81
	OpStopAll       byte = 0x50
	OpClearTimer    byte = 0xA1
	OpClearMsg      byte = 0x90
	OpClearSensor   byte = 0xD1
	OpGoSub         byte = 0x17
	OpSetDatalog    byte = 0x52
	OpDatalog       byte = 0x62
	OpUploadDatalog byte = 0xA4
	// system
	OpRead          byte = 0x12
	OpUnlock        byte = 0x1D
	OpBeginTask     byte = 0x25
	OpBeginSub      byte = 0x35
	OpDownload      byte = 0x45
	OpMessage       byte = 0xF7
	OpDeleteTasks   byte = 0x40
	OpDeleteSubs    byte = 0x70
	OpBootMode      byte = 0x65
	OpBeginFirmware byte = 0x75
	OpEndFirmware   byte = 0xAD
	OpPing          byte = 0x10
	OpSelectProgram byte = 0x91
	OpBatteryLevel  byte = 0x30
	OpSetWatch      byte = 0x22
	OpIRMode        byte = 0x31
	OpAutoOff       byte = 0xB1
)

// duplicateBit is flipped in an opcode that repeats the previous one.
const duplicateBit = 0x08

// Download status codes reported in the second reply byte
const (
	statusOK                   = 0x00
	statusInsufficientMemory   = 0x01
	statusInvalidIndex         = 0x02
	statusBlockChecksum        = 0x03
	statusFirmwareChecksum     = 0x04
	statusMissingDownloadStart = 0x06
)

// Command is one logical RCX command: an opcode followed by its parameters.
// The zero value is empty and is rejected by the link.
type Command struct {
	data []byte
}

// NewCommand builds a command from an opcode and already-encoded parameters.
func NewCommand(op byte, params ...byte) Command {
	data := make([]byte, 0, 1+len(params))
	data = append(data, op)
	return Command{data: append(data, params...)}
}

// RawCommand wraps arbitrary bytes, typically parsed byte codes.
func RawCommand(data []byte) Command {
	return Command{data: append([]byte(nil), data...)}
}

// Opcode returns the first byte, or 0 for an empty command.
func (c Command) Opcode() byte {
	if len(c.data) == 0 {
		return 0
	}
	return c.data[0]
}

// Len returns the number of bytes in the command.
func (c Command) Len() int {
	return len(c.data)
}

// Bytes returns a copy of the command bytes.
func (c Command) Bytes() []byte {
	return append([]byte(nil), c.data...)
}

func (c Command) String() string {
	return "Command[" + formatHexBytes(c.data) + "]"
}

// Value source types, carried in bits 16..23 of a Value
const (
	SourceVariable    byte = 0
	SourceTimer       byte = 1
	SourceConstant    byte = 2
	SourceRandom      byte = 4
	SourceSensorValue byte = 9
)

// Value is an RCX operand: a source type in bits 16..23 and a 16-bit
// argument in bits 0..15.
type Value uint32

// MakeValue combines a source type and its argument.
func MakeValue(source byte, data uint16) Value {
	return Value(uint32(source)<<16 | uint32(data))
}

// Constant returns a constant operand.
func Constant(n int16) Value {
	return MakeValue(SourceConstant, uint16(n))
}

// Type returns the source type byte.
func (v Value) Type() byte {
	return byte(v >> 16)
}

// Data returns the 16-bit argument.
func (v Value) Data() uint16 {
	return uint16(v)
}

func lobyte(n int) byte { return byte(n) }

func hibyte(n int) byte { return byte(n >> 8) }

// Value8Command encodes op, the value type and the low data byte.
func Value8Command(op byte, v Value) Command {
	return NewCommand(op, v.Type(), byte(v.Data()))
}

// Value16Command encodes op, the value type and the data word, low byte first.
func Value16Command(op byte, v Value) Command {
	d := int(v.Data())
	return NewCommand(op, v.Type(), lobyte(d), hibyte(d))
}

// PingCommand checks that the RCX is alive.
func PingCommand() Command { return NewCommand(OpPing) }

// StopAllCommand stops every running task.
func StopAllCommand() Command { return NewCommand(OpStopAll) }

// DeleteTasksCommand deletes all tasks of the selected program.
func DeleteTasksCommand() Command { return NewCommand(OpDeleteTasks) }

// DeleteSubsCommand deletes all subroutines of the selected program.
func DeleteSubsCommand() Command { return NewCommand(OpDeleteSubs) }

// BatteryLevelCommand asks for the battery voltage in millivolts.
func BatteryLevelCommand() Command { return NewCommand(OpBatteryLevel) }

// SelectProgramCommand selects program slot 0..4.
func SelectProgramCommand(prog byte) Command { return NewCommand(OpSelectProgram, prog) }

// StartTaskCommand starts a task of the selected program.
func StartTaskCommand(task byte) Command { return NewCommand(OpStartTask, task) }

// StopTaskCommand stops a task of the selected program.
func StopTaskCommand(task byte) Command { return NewCommand(OpStopTask, task) }

// UnlockCommand sends the 1 3 5 7 11 key the ROM expects before firmware use.
func UnlockCommand() Command {
	return NewCommand(OpUnlock, 0x01, 0x03, 0x05, 0x07, 0x0B)
}

// PlaySoundCommand plays one of the eight system sounds.
func PlaySoundCommand(sound byte) Command {
	return NewCommand(OpPlaySound, sound&0x07)
}

// PlayToneCommand plays freq Hz for duration hundredths of a second.
func PlayToneCommand(freq uint16, duration byte) Command {
	return NewCommand(OpPlayTone, lobyte(int(freq)), hibyte(int(freq)), duration)
}

// OutputPowerCommand sets the power of the outputs in the bitmask.
func OutputPowerCommand(outputs byte, v Value) Command {
	return NewCommand(OpOutputPower, outputs, v.Type(), byte(v.Data()))
}

// BeginTaskCommand opens a download of length bytes into task slot task.
func BeginTaskCommand(task byte, length int) Command {
	return NewCommand(OpBeginTask, 0x00, task, 0x00, lobyte(length), hibyte(length))
}

// BeginSubCommand opens a download of length bytes into subroutine slot sub.
func BeginSubCommand(sub byte, length int) Command {
	return NewCommand(OpBeginSub, 0x00, sub, 0x00, lobyte(length), hibyte(length))
}

// downloadChunkOverhead is the size of a Download command without its data:
// opcode, sequence number, length and data sum.
const downloadChunkOverhead = 6

// DownloadChunkCommand carries one transfer unit: sequence number and length
// (both low byte first), the data, and the sum of the data bytes.
func DownloadChunkCommand(seq uint16, data []byte) Command {
	out := make([]byte, 0, downloadChunkOverhead+len(data))
	out = append(out, OpDownload,
		lobyte(int(seq)), hibyte(int(seq)),
		lobyte(len(data)), hibyte(len(data)))
	out = append(out, data...)
	return Command{data: append(out, frame.CalculateChecksum(data))}
}

// StatusCheck interprets a device reply and returns a non-nil error when the
// request failed.
type StatusCheck func(reply []byte) error

// replyMatches reports whether got is the reply opcode for op. The RCX
// answers with the complement of the opcode it received, which may carry
// the duplicate bit.
func replyMatches(op, got byte) bool {
	return got == ^op || got == ^(op^duplicateBit)
}

// CheckBeginTaskReply validates the reply to a BeginTask command.
func CheckBeginTaskReply(reply []byte) error {
	return checkBeginReply("begin task", OpBeginTask, reply)
}

// CheckBeginSubReply validates the reply to a BeginSub command.
func CheckBeginSubReply(reply []byte) error {
	return checkBeginReply("begin subroutine", OpBeginSub, reply)
}

func checkBeginReply(op string, opcode byte, reply []byte) error {
	if len(reply) != 2 || !replyMatches(opcode, reply[0]) {
		return fmt.Errorf("%s: %w: % X", op, ErrInvalidResponse, reply)
	}

	switch reply[1] {
	case statusOK:
		return nil
	case statusInsufficientMemory:
		return &DeviceError{Op: op, Reason: RejectInsufficientMemory, Status: reply[1]}
	case statusInvalidIndex:
		return &DeviceError{Op: op, Reason: RejectInvalidIndex, Status: reply[1]}
	default:
		return fmt.Errorf("%s: %w: status 0x%02X", op, ErrInvalidResponse, reply[1])
	}
}

// CheckDownloadReply validates the reply to a Download chunk. Status codes
// other than the three known failures are accepted.
func CheckDownloadReply(reply []byte) error {
	const op = "transfer data"
	if len(reply) != 2 || !replyMatches(OpDownload, reply[0]) {
		return fmt.Errorf("%s: %w: % X", op, ErrInvalidResponse, reply)
	}

	switch reply[1] {
	case statusBlockChecksum:
		return &DeviceError{Op: op, Reason: RejectBlockChecksum, Status: reply[1]}
	case statusFirmwareChecksum:
		return &DeviceError{Op: op, Reason: RejectFirmwareChecksum, Status: reply[1]}
	case statusMissingDownloadStart:
		return &DeviceError{Op: op, Reason: RejectMissingDownloadStart, Status: reply[1]}
	default:
		return nil
	}
}

// OpcodeName returns a readable name for an opcode, for logs.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op&^duplicateBit]; ok {
		return name
	}
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", op)
}

var opcodeNames = map[byte]string{
	OpPing:          "Ping",
	OpStopAll:       "StopAll",
	OpSelectProgram: "SelectProgram",
	OpDeleteTasks:   "DeleteTasks",
	OpDeleteSubs:    "DeleteSubs",
	OpBeginTask:     "BeginTask",
	OpBeginSub:      "BeginSub",
	OpDownload:      "Download",
	OpPlaySound:     "PlaySound",
	OpPlayTone:      "PlayTone",
	OpStartTask:     "StartTask",
	OpStopTask:      "StopTask",
	OpBatteryLevel:  "BatteryLevel",
	OpUnlock:        "Unlock",
	OpOutputPower:   "OutputPower",
}

// commandSummary renders a command for debug output.
func commandSummary(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	sb.WriteString(OpcodeName(data[0]))
	if len(data) > 1 {
		sb.WriteString(" ")
		sb.WriteString(formatHexBytes(data[1:]))
	}
	return sb.String()
}

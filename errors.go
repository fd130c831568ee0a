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
	"io"
	"syscall"

	"github.com/ZaparooProject/go-rcx/internal/frame"
)

// Link errors
var (
	ErrLinkClosed       = errors.New("link is closed")
	ErrInvalidCommand   = errors.New("invalid command: empty payload")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrResponseTooLarge = errors.New("response exceeds receive buffer")
	ErrPayloadTooLarge  = errors.New("payload exceeds 65535 bytes")
	ErrInvalidOption    = errors.New("invalid option")
)

// Response validation errors. These come straight from the wire codec so
// errors.Is works against either name.
var (
	ErrEchoMismatch           = frame.ErrEchoMismatch
	ErrBadHeader              = frame.ErrBadHeader
	ErrCorruptResponse        = frame.ErrCorruptResponse
	ErrMalformedLength        = frame.ErrMalformedLength
	ErrChecksumShadowMismatch = frame.ErrChecksumShadowMismatch
	ErrChecksumMismatch       = frame.ErrChecksumMismatch
)

// Device errors - never retried
var (
	ErrDeviceRejected  = errors.New("device rejected request")
	ErrInvalidResponse = errors.New("invalid response format")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates the device did not answer in time
	ErrorTypeTimeout
)

// TransportError wraps link-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectReason says why the RCX refused a download step.
type RejectReason int

const (
	RejectInsufficientMemory RejectReason = iota + 1
	RejectInvalidIndex
	RejectBlockChecksum
	RejectFirmwareChecksum
	RejectMissingDownloadStart
)

func (r RejectReason) String() string {
	switch r {
	case RejectInsufficientMemory:
		return "insufficient memory"
	case RejectInvalidIndex:
		return "index invalid"
	case RejectBlockChecksum:
		return "block checksum failure"
	case RejectFirmwareChecksum:
		return "firmware checksum error"
	case RejectMissingDownloadStart:
		return "invalid or missing download start"
	default:
		return fmt.Sprintf("reason %d", int(r))
	}
}

// DeviceError reports a request the RCX understood and explicitly refused.
// Repeating the request cannot succeed, so it is never retried.
type DeviceError struct {
	Op     string
	Reason RejectReason
	Status byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s rejected: %s (status 0x%02X)", e.Op, e.Reason, e.Status)
}

// Unwrap lets errors.Is match ErrDeviceRejected.
func (*DeviceError) Unwrap() error {
	return ErrDeviceRejected
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrEchoMismatch),
		errors.Is(err, ErrBadHeader),
		errors.Is(err, ErrCorruptResponse),
		errors.Is(err, ErrMalformedLength),
		errors.Is(err, ErrChecksumShadowMismatch),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrResponseTooLarge):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the link is gone and further
// exchanges on it are pointless.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}

	switch {
	case errors.Is(err, ErrLinkClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsDeviceRejected reports whether err is a refusal from the RCX and returns
// the reason when it is.
func IsDeviceRejected(err error) (RejectReason, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return 0, false
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for a read that got no bytes
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError creates a short-write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

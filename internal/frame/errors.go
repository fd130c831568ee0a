// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import "errors"

// Wire-level validation errors, in the order Validate checks them.
var (
	ErrIncomplete             = errors.New("response incomplete")
	ErrEchoMismatch           = errors.New("echo does not match sent frame")
	ErrBadHeader              = errors.New("bad response header")
	ErrCorruptResponse        = errors.New("shadow byte mismatch")
	ErrMalformedLength        = errors.New("malformed response length")
	ErrChecksumShadowMismatch = errors.New("checksum shadow mismatch")
	ErrChecksumMismatch       = errors.New("checksum mismatch")
	ErrEmptyCommand           = errors.New("empty command")
)

// Truncated reports whether err may only mean that the rest of the response
// has not arrived yet. Reading more bytes can turn these into a valid frame;
// every other validation error is final.
func Truncated(err error) bool {
	return errors.Is(err, ErrMalformedLength) ||
		errors.Is(err, ErrChecksumShadowMismatch) ||
		errors.Is(err, ErrChecksumMismatch)
}

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

// Package frame implements the RCX wire format: a fixed header, every payload
// byte followed by its one's-complement shadow, and a checksum trailer that is
// shadowed the same way.
//
//	55 FF 00  b0 ~b0  b1 ~b1 ... bn ~bn  sum ~sum
package frame

// Header bytes that open every frame in both directions.
const (
	Header1 = 0x55
	Header2 = 0xFF
	Header3 = 0x00
)

// Frame size constants
const (
	HeaderLength  = 3
	TrailerLength = 2

	// Overhead is the number of bytes a frame adds around the shadowed body.
	Overhead = HeaderLength + TrailerLength

	// MinReplyLength is the smallest reply that can follow an echo: header,
	// one shadowed byte and the trailer.
	MinReplyLength = HeaderLength + 2 + TrailerLength

	// DefaultMaxResponseLength bounds the receive buffer for one exchange.
	DefaultMaxResponseLength = 4096
)

// header is the fixed frame prefix
var header = [HeaderLength]byte{Header1, Header2, Header3}

// EncodedLength returns the frame length for a command of n bytes.
func EncodedLength(n int) int {
	return Overhead + 2*n
}

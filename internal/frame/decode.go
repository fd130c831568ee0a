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

import "bytes"

// Validate checks a receive buffer against the frame that was just sent.
// The device echoes the sent frame before its own reply, so received must
// start with sent. ErrIncomplete means more bytes are needed before a verdict
// is possible; it is safe to call again with a longer buffer.
//
// On success the reply payload is returned with header, shadows and checksum
// removed.
func Validate(sent, received []byte) ([]byte, error) {
	if len(received) < len(sent)+MinReplyLength {
		return nil, ErrIncomplete
	}

	if !bytes.Equal(received[:len(sent)], sent) {
		return nil, ErrEchoMismatch
	}

	return Decode(received[len(sent):])
}

// Decode validates a single frame with no echo prefix and returns its
// payload. All bytes of buf are expected to belong to the frame.
func Decode(buf []byte) ([]byte, error) {
	if len(buf) < MinReplyLength {
		return nil, ErrIncomplete
	}

	if !bytes.Equal(buf[:HeaderLength], header[:]) {
		return nil, ErrBadHeader
	}

	end := len(buf) - TrailerLength
	payload := make([]byte, 0, (end-HeaderLength)/2)

	i := HeaderLength
	for ; i+1 < end; i += 2 {
		if !IsShadowPair(buf[i], buf[i+1]) {
			return nil, ErrCorruptResponse
		}
		payload = append(payload, buf[i])
	}

	// An odd body length leaves one unpaired byte before the trailer.
	if i != end {
		return nil, ErrMalformedLength
	}

	if !IsShadowPair(buf[end], buf[end+1]) {
		return nil, ErrChecksumShadowMismatch
	}

	if buf[end] != CalculateChecksum(payload) {
		return nil, ErrChecksumMismatch
	}

	return payload, nil
}

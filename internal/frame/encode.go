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

// Build encodes cmd into a complete frame. It applies no duplicate-opcode
// handling; that state lives with the link that sends the frame.
func Build(cmd []byte) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, ErrEmptyCommand
	}

	out := make([]byte, 0, EncodedLength(len(cmd)))
	out = append(out, header[:]...)

	for _, b := range cmd {
		out = append(out, b, Shadow(b))
	}

	sum := CalculateChecksum(cmd)
	return append(out, sum, Shadow(sum)), nil
}

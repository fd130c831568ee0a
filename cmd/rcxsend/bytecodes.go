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

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errNoByteCodes = errors.New("no byte codes")

// parseByteCodes parses hex byte codes separated by spaces, commas, tabs
// or line breaks, as found in listing files and on the command line.
func parseByteCodes(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', ',', '\t', '\n', '\r':
			return true
		default:
			return false
		}
	})
	return parseCodeFields(fields)
}

// parseCodeFields parses one hex byte code per field.
func parseCodeFields(fields []string) ([]byte, error) {
	data := make([]byte, 0, len(fields))
	for _, f := range fields {
		for _, code := range strings.Split(f, ",") {
			if code == "" {
				continue
			}
			v, err := strconv.ParseUint(code, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid byte code %q: %w", code, err)
			}
			data = append(data, byte(v))
		}
	}
	if len(data) == 0 {
		return nil, errNoByteCodes
	}
	return data, nil
}

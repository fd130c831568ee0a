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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ZaparooProject/go-rcx"
)

// progressPrinter renders transfer progress. On a terminal it redraws a
// single line; otherwise it prints one line per finished fragment.
type progressPrinter struct {
	out   io.Writer
	width int
	live  bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	p := &progressPrinter{out: out}
	if f, ok := out.(*os.File); ok {
		fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
		if term.IsTerminal(fd) {
			p.live = true
			if w, _, err := term.GetSize(fd); err == nil {
				p.width = w
			}
		}
	}
	return p
}

func (p *progressPrinter) update(pr rcx.Progress) {
	line := fmt.Sprintf("chunk %d/%d  %d/%d bytes  %3.0f%%  %s",
		pr.Chunk, pr.Chunks, pr.BytesSent, pr.Total, pr.Percentage(), pr.Elapsed.Round(time.Millisecond))

	if !p.live {
		if pr.Chunk == pr.Chunks {
			_, _ = fmt.Fprintln(p.out, line)
		}
		return
	}

	if p.width > 1 && len(line) >= p.width {
		line = line[:p.width-1]
	} else if p.width > 1 {
		line += strings.Repeat(" ", p.width-1-len(line))
	}
	_, _ = fmt.Fprintf(p.out, "\r%s", line)
	if pr.Chunk == pr.Chunks {
		_, _ = fmt.Fprintln(p.out)
	}
}

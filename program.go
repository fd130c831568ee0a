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

import "slices"

// Program is the content of one program slot: up to MaxTasks tasks and any
// number of subroutines, each as compiled byte code.
type Program struct {
	tasks  [][]byte
	subs   [][]byte
	number byte
}

// NewProgram creates a program for slot number (0..4) holding tasks. A slot
// outside that range selects the last slot. Tasks beyond MaxTasks are
// ignored.
func NewProgram(number int, tasks ...[]byte) *Program {
	if number < 0 || number >= MaxPrograms {
		number = MaxPrograms - 1
	}
	p := &Program{number: byte(number)}
	for _, t := range tasks {
		p.AddTask(t)
	}
	return p
}

// AddTask appends a task and reports whether there was a free slot for it.
func (p *Program) AddTask(code []byte) bool {
	if len(p.tasks) >= MaxTasks {
		return false
	}
	p.tasks = append(p.tasks, append([]byte(nil), code...))
	return true
}

// AddSub appends a subroutine and returns its index.
func (p *Program) AddSub(code []byte) int {
	p.subs = append(p.subs, append([]byte(nil), code...))
	return len(p.subs) - 1
}

// Number returns the program slot, 0 based.
func (p *Program) Number() byte {
	return p.number
}

// Tasks returns the task byte codes in slot order. The byte codes are shared
// with the program; the slice holding them is not.
func (p *Program) Tasks() [][]byte {
	return slices.Clone(p.tasks)
}

// Subs returns the subroutine byte codes in slot order.
func (p *Program) Subs() [][]byte {
	return slices.Clone(p.subs)
}

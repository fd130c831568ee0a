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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-rcx/internal/syncutil"
)

// sessionLog is the open session log, if any.
var sessionLog struct {
	file *os.File
	path string
	mu   syncutil.Mutex
}

// InitSessionLog creates a log file in dir and tees debug output into it
// alongside the console. Debug logging is switched on. A session log that is
// already open is ended and closed first. Returns the file path.
func InitSessionLog(dir string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("rcx_%s.log", timestamp)
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	logFile, err := os.Create(filename) //nolint:gosec // filename is constructed internally, not user input
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	writeSessionHeader(logFile)

	sessionLog.mu.Lock()
	defer sessionLog.mu.Unlock()

	prev := sessionLog.file
	sessionLog.file = logFile
	sessionLog.path = filename
	SetLogOutput(zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"},
		logFile,
	))
	SetDebugEnabled(true)

	if prev != nil {
		if err := endSessionLog(prev); err != nil {
			Debugf("previous session log: %v", err)
		}
	}
	return filename, nil
}

// CloseSessionLog closes the current session log file and restores console
// output.
func CloseSessionLog() error {
	sessionLog.mu.Lock()
	defer sessionLog.mu.Unlock()

	if sessionLog.file == nil {
		return nil
	}
	f := sessionLog.file
	sessionLog.file = nil
	sessionLog.path = ""
	SetLogOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	return endSessionLog(f)
}

// endSessionLog writes the closing line and closes f.
func endSessionLog(f *os.File) error {
	_, _ = fmt.Fprintf(f, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionLog.mu.Lock()
	defer sessionLog.mu.Unlock()
	return sessionLog.path
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(writer io.Writer) {
	_, _ = fmt.Fprint(writer, "=== RCX Debug Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(writer, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(writer, "==============================\n\n")
}

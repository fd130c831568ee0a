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

// Command rcxsend downloads a program of RCX byte codes through a serial IR
// tower.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-rcx"
	"github.com/ZaparooProject/go-rcx/transport/uart"
)

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseArgs(args, os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down...\n")
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if tr := rcx.GetTrace(err); tr != nil && cfg.debug {
			_, _ = fmt.Fprint(os.Stderr, tr.FormatTrace())
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	if cfg.list {
		return listPorts(out)
	}

	if cfg.debug {
		rcx.SetDebugEnabled(true)
	}
	if cfg.logDir != "" {
		path, err := rcx.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		defer func() { _ = rcx.CloseSessionLog() }()
		_, _ = fmt.Fprintf(out, "Session log: %s\n", path)
	}

	data, err := loadByteCodes(cfg)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Opening port %s...\n", cfg.port)
	transport, err := uart.New(cfg.port)
	if err != nil {
		return fmt.Errorf("failed to open IR tower: %w", err)
	}
	if err := transport.SetTimeout(cfg.readTimeout); err != nil {
		_ = transport.Close()
		return err
	}

	return download(ctx, transport, cfg, data, out)
}

// download sends data as task 0 of the configured program.
func download(ctx context.Context, transport rcx.Transport, cfg *config, data []byte, out io.Writer) error {
	progress := newProgressPrinter(out)
	opts := append(cfg.sessionOptions(), rcx.WithProgress(progress.update))

	session, err := rcx.New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	_, _ = fmt.Fprintf(out, "Downloading %d bytes to program %d...\n", len(data), cfg.program)
	prog := rcx.NewProgram(cfg.program-1, data)
	if err := session.DownloadProgram(ctx, prog, cfg.run); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Done.")
	return nil
}

func loadByteCodes(cfg *config) ([]byte, error) {
	if cfg.file != "" {
		text, err := os.ReadFile(cfg.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read byte codes: %w", err)
		}
		data, err := parseByteCodes(string(text))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.file, err)
		}
		return data, nil
	}
	return parseCodeFields(cfg.codes)
}

func listPorts(out io.Writer) error {
	ports, err := uart.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found.")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p.String())
	}
	return nil
}

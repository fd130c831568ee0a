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
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZaparooProject/go-rcx"
)

const defaultProgram = 5

var errUsage = errors.New("usage")

type config struct {
	port        string
	file        string
	configPath  string
	logDir      string
	codes       []string
	program     int
	retries     int
	chunkSize   int
	readTimeout time.Duration
	raw         bool
	run         bool
	debug       bool
	list        bool
}

// fileConfig mirrors the keys accepted in a -config file.
type fileConfig struct {
	Port          string `toml:"port"`
	Program       int    `toml:"program"`
	Retries       int    `toml:"retries"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
	ChunkSize     int    `toml:"chunk_size"`
	Run           bool   `toml:"run"`
	Debug         bool   `toml:"debug"`
}

func defaultConfig() *config {
	return &config{
		program:     defaultProgram,
		retries:     rcx.DefaultRetryCount,
		chunkSize:   rcx.DefaultChunkSize,
		readTimeout: rcx.DefaultReadTimeout,
	}
}

// parseArgs builds the configuration from defaults, then the -config file,
// then the flags given explicitly on the command line.
func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("rcxsend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: rcxsend -p <port> -n <1-5> (-f <file> | -raw <byte codes...>)")
		fs.PrintDefaults()
	}

	var (
		port     = fs.String("p", "", "Serial port of the IR tower")
		program  = fs.Int("n", defaultProgram, "RCX program number (1-5)")
		file     = fs.String("f", "", "File of hex byte codes")
		raw      = fs.Bool("raw", false, "Treat the remaining arguments as hex byte codes")
		run      = fs.Bool("run", false, "Start task 0 after the download")
		cfgPath  = fs.String("config", "", "TOML configuration file")
		debug    = fs.Bool("debug", false, "Enable debug output")
		list     = fs.Bool("list", false, "List serial ports and exit")
		logDir   = fs.String("log", "", "Write a session log into this directory")
		retries  = fs.Int("retries", rcx.DefaultRetryCount, "Attempts per exchange")
		chunk    = fs.Int("chunk", rcx.DefaultChunkSize, "Program bytes per download chunk")
		timeoutF = fs.Duration("timeout", rcx.DefaultReadTimeout, "Read timeout")
	)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	cfg := defaultConfig()
	if *cfgPath != "" {
		if err := cfg.loadFile(*cfgPath); err != nil {
			return nil, err
		}
		cfg.configPath = *cfgPath
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			cfg.port = strings.TrimSpace(*port)
		case "n":
			cfg.program = *program
		case "run":
			cfg.run = *run
		case "debug":
			cfg.debug = *debug
		case "retries":
			cfg.retries = *retries
		case "chunk":
			cfg.chunkSize = *chunk
		case "timeout":
			cfg.readTimeout = *timeoutF
		}
	})
	cfg.file = *file
	cfg.raw = *raw
	cfg.list = *list
	cfg.logDir = *logDir
	if cfg.raw {
		cfg.codes = fs.Args()
	} else if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the keys present in a TOML file.
func (c *config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		c.port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("program") {
		c.program = raw.Program
	}
	if meta.IsDefined("retries") {
		c.retries = raw.Retries
	}
	if meta.IsDefined("read_timeout_ms") {
		c.readTimeout = time.Duration(raw.ReadTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("chunk_size") {
		c.chunkSize = raw.ChunkSize
	}
	if meta.IsDefined("run") {
		c.run = raw.Run
	}
	if meta.IsDefined("debug") {
		c.debug = raw.Debug
	}
	return nil
}

func (c *config) validate() error {
	if c.list {
		return nil
	}
	if c.program < 1 || c.program > rcx.MaxPrograms {
		return fmt.Errorf("%w: program number %d out of range 1-%d", errUsage, c.program, rcx.MaxPrograms)
	}
	if c.port == "" {
		return fmt.Errorf("%w: no serial port given (-p)", errUsage)
	}
	if c.readTimeout <= 0 {
		return fmt.Errorf("%w: read timeout must be positive", errUsage)
	}
	switch {
	case c.file != "" && c.raw:
		return fmt.Errorf("%w: -f and -raw are exclusive", errUsage)
	case c.file == "" && !c.raw:
		return fmt.Errorf("%w: must specify either -f or -raw", errUsage)
	}
	return nil
}

// sessionOptions turns the configuration into session options.
func (c *config) sessionOptions() []rcx.Option {
	return []rcx.Option{
		rcx.WithRetryCount(c.retries),
		rcx.WithChunkSize(c.chunkSize),
	}
}

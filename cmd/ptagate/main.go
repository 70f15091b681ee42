// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Command ptagate runs the access token gateway: it verifies signed
// URL tokens on protected path prefixes and forwards accepted
// requests to a static content root or an upstream server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/ptagate/ptagate/gateway"
	"github.com/ptagate/ptagate/journal"
	"github.com/ptagate/ptagate/lib/clock"
	"github.com/ptagate/ptagate/lib/keyring"
	"github.com/ptagate/ptagate/lib/process"
	"github.com/ptagate/ptagate/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "/etc/ptagate/gateway.yaml", "path to the gateway configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("ptagate %s\n", version.Info())
		return nil
	}

	config, err := gateway.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(config.Level())

	ring, err := keyring.Load(config.Keys.File, config.Keys.Identity)
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}
	for _, generation := range ring.Generations() {
		logger.Info("key generation loaded",
			"generation", generation.Name,
			"fingerprint", generation.Fingerprint,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	systemClock := clock.Real()

	var store *journal.Store
	if config.Journal.Path != "" {
		store, err = journal.Open(journal.Config{
			Path:   config.Journal.Path,
			Clock:  systemClock,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()
		logger.Info("journal enabled",
			"path", config.Journal.Path,
			"retention", config.JournalRetention(),
		)
	}

	server, err := gateway.New(config, ring, store, systemClock, logger)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

// newLogger builds the process logger: human-readable text when
// stderr is a terminal, JSON when piped or redirected.
func newLogger(level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

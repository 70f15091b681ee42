// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ptagate/ptagate/journal"
	"github.com/ptagate/ptagate/lib/clock"
	"github.com/ptagate/ptagate/lib/keyring"
)

const shutdownTimeout = 10 * time.Second

// Server runs the gateway: one TCP listener, the verification
// handler, and the journal retention loop.
type Server struct {
	listen     string
	httpServer *http.Server
	journal    *journal.Store
	retention  time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New assembles a server from a validated configuration and its
// loaded dependencies. The journal store may be nil when journaling
// is disabled.
func New(cfg *Config, ring *keyring.Keyring, store *journal.Store, clk clock.Clock, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if ring == nil {
		return nil, fmt.Errorf("keyring is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	policies, err := compilePolicies(cfg.Protect)
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		logger.Warn("no protected prefixes configured; every path passes through unverified")
	}

	origin, err := newOrigin(cfg.Origin, logger)
	if err != nil {
		return nil, err
	}

	var retention time.Duration
	if store != nil {
		retention = cfg.JournalRetention()
	}

	return &Server{
		listen: cfg.Listen,
		httpServer: &http.Server{
			Handler:     newHandler(policies, ring, origin, store, clk, logger),
			ReadTimeout: 30 * time.Second,
			// Long write timeout: content transfers can be large.
			WriteTimeout: 5 * time.Minute,
		},
		journal:   store,
		retention: retention,
		logger:    logger,
	}, nil
}

// Addr returns the bound listener address once Run has started
// listening, nil before that. Useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until the context is canceled, then shuts down
// gracefully. The journal retention loop runs alongside and stops
// with the same context.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()
	s.logger.Info("gateway started", "listen", listener.Addr().String())

	if s.journal != nil && s.retention > 0 {
		go s.journal.RunRetention(ctx, s.retention)
	}

	serveDone := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveDone <- err
			return
		}
		serveDone <- nil
	}()

	notifySystemd("READY=1")

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serveDone
}

// notifySystemd sends a notification to systemd's sd_notify socket.
// Does nothing if NOTIFY_SOCKET is not set.
func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}

	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.Write([]byte(state))
}

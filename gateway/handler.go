// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ptagate/ptagate/journal"
	"github.com/ptagate/ptagate/lib/clock"
	"github.com/ptagate/ptagate/lib/keyring"
	"github.com/ptagate/ptagate/lib/pta"
)

// healthPath responds without verification and takes precedence over
// any protected prefix that would otherwise cover it.
const healthPath = "/healthz"

// handler routes requests through verification. Unprotected paths go
// straight to the origin; protected paths are verified, logged,
// journaled, and dispatched by outcome.
type handler struct {
	policies []Policy
	keyring  *keyring.Keyring
	origin   http.Handler
	journal  *journal.Store
	clock    clock.Clock
	logger   *slog.Logger
}

func newHandler(policies []Policy, ring *keyring.Keyring, origin http.Handler, store *journal.Store, clk clock.Clock, logger *slog.Logger) *handler {
	return &handler{
		policies: policies,
		keyring:  ring,
		origin:   origin,
		journal:  store,
		clock:    clk,
		logger:   logger,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == healthPath {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
		return
	}

	policy, protected := h.policyFor(r.URL.Path)
	if !protected {
		h.origin.ServeHTTP(w, r)
		return
	}
	h.serveProtected(w, r, policy)
}

// policyFor returns the longest-prefix policy covering the path.
func (h *handler) policyFor(path string) (Policy, bool) {
	var best Policy
	found := false
	for _, policy := range h.policies {
		if !strings.HasPrefix(path, policy.Prefix) {
			continue
		}
		if !found || len(policy.Prefix) > len(best.Prefix) {
			best = policy
			found = true
		}
	}
	return best, found
}

func (h *handler) serveProtected(w http.ResponseWriter, r *http.Request, policy Policy) {
	startTime := h.clock.Now()
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)

	req := pta.Request{Path: r.URL.Path}
	req.QueryToken, req.HasQueryToken = queryToken(r.URL.RawQuery)
	if policy.Sources&pta.SourceCookie != 0 {
		req.CookieTokens = cookieTokens(r.Header)
	}

	result := pta.VerifyAt(req, policy.Sources, h.keyring.KeySet(), startTime)
	duration := h.clock.Now().Sub(startTime)

	h.logDecision(requestID, r.URL.Path, result, duration)
	h.record(r.Context(), requestID, r.URL.Path, result, duration)

	switch result.Outcome {
	case pta.Accepted:
		forwarded := r.Clone(r.Context())
		forwarded.URL.RawQuery = stripToken(r.URL.RawQuery)
		h.origin.ServeHTTP(w, forwarded)
	case pta.Expired:
		http.Error(w, "gone", http.StatusGone)
	case pta.Internal:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	default:
		// Malformed, and anything unrecognized, fails closed.
		http.Error(w, "forbidden", http.StatusForbidden)
	}
}

func (h *handler) logDecision(requestID, path string, result pta.Result, duration time.Duration) {
	attrs := []any{
		"request_id", requestID,
		"path", path,
		"outcome", result.Outcome,
		"reason", result.Reason,
		"source", result.Source,
		"generation", result.Generation,
		"candidates", candidatesExamined(result),
		"duration", duration,
	}
	switch result.Outcome {
	case pta.Accepted:
		attrs = append(attrs, "key", h.keyring.Fingerprint(result.Generation))
		h.logger.Info("request accepted", attrs...)
	case pta.Internal:
		h.logger.Error("verification unavailable", attrs...)
	default:
		h.logger.Warn("request rejected", attrs...)
	}
}

// record writes the decision to the journal. Failures are logged and
// never affect the response.
func (h *handler) record(ctx context.Context, requestID, path string, result pta.Result, duration time.Duration) {
	if h.journal == nil {
		return
	}
	decision := journal.Decision{
		RequestID:  requestID,
		Path:       path,
		Outcome:    result.Outcome,
		Reason:     result.Reason,
		Source:     result.Source,
		Generation: result.Generation,
		Candidates: candidatesExamined(result),
		Duration:   duration,
		Attempts:   result.Attempts,
	}
	if err := h.journal.Record(ctx, decision); err != nil {
		h.logger.Warn("journal write failed", "request_id", requestID, "error", err)
	}
}

// candidatesExamined counts the candidates the verifier advanced
// through: the decisive candidate's index plus one, or zero when none
// was extracted.
func candidatesExamined(result pta.Result) int {
	if result.Candidate < 0 {
		return 0
	}
	return result.Candidate + 1
}

// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package pta

import (
	"testing"
	"time"
)

// now and future anchor the deadline tests: tokens sealed with
// "future" are in time at "now".
var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testFuture = uint64(testNow.Add(time.Hour).Unix())
	testPast   = uint64(testNow.Add(-time.Hour).Unix())
)

func TestVerifyQueryAccepted(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path:          "/media/clip.mp4",
		QueryToken:    sealToken(t, primaryKey, primaryIV, testFuture, "/media/clip.mp4"),
		HasQueryToken: true,
	}

	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Source != SourceQuery {
		t.Errorf("source = %v, want %v", result.Source, SourceQuery)
	}
	if result.Generation != 0 {
		t.Errorf("generation = %d, want 0", result.Generation)
	}
	if result.Candidate != 0 {
		t.Errorf("candidate = %d, want 0", result.Candidate)
	}
	if result.Pattern != "/media/clip.mp4" {
		t.Errorf("pattern = %q, want %q", result.Pattern, "/media/clip.mp4")
	}
	if result.Deadline != testFuture {
		t.Errorf("deadline = %d, want %d", result.Deadline, testFuture)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Reason != ReasonNone {
		t.Errorf("attempts = %+v, want one accepting attempt", result.Attempts)
	}
}

func TestVerifySecondaryGeneration(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, secondaryKey, secondaryIV, testFuture, "/a"),
		HasQueryToken: true,
	}

	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Generation != 1 {
		t.Errorf("generation = %d, want 1", result.Generation)
	}
	// The primary generation must have been tried and failed first.
	if len(result.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(result.Attempts))
	}
	if result.Attempts[0].Generation != 0 || result.Attempts[0].Reason == ReasonNone {
		t.Errorf("first attempt = %+v, want failed generation 0", result.Attempts[0])
	}
	if result.Attempts[1].Generation != 1 || result.Attempts[1].Reason != ReasonNone {
		t.Errorf("second attempt = %+v, want accepting generation 1", result.Attempts[1])
	}
}

func TestVerifyExpired(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, primaryKey, primaryIV, testPast, "/a"),
		HasQueryToken: true,
	}

	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Expired {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Expired)
	}
	if result.Reason != ReasonExpired {
		t.Errorf("reason = %v, want %v", result.Reason, ReasonExpired)
	}
	if result.Deadline != testPast {
		t.Errorf("deadline = %d, want %d", result.Deadline, testPast)
	}
}

func TestVerifyDeadlineBoundary(t *testing.T) {
	// A request in the deadline second is still in time.
	keys := testKeySet(t)
	deadline := uint64(testNow.Unix())
	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, primaryKey, primaryIV, deadline, "/a"),
		HasQueryToken: true,
	}

	if result := VerifyAt(req, SourceQuery, keys, testNow); result.Outcome != Accepted {
		t.Fatalf("outcome at boundary = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result := VerifyAt(req, SourceQuery, keys, testNow.Add(time.Second)); result.Outcome != Expired {
		t.Fatalf("outcome past boundary = %v, want %v", result.Outcome, Expired)
	}
}

func TestVerifyURLMismatch(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path:          "/other",
		QueryToken:    sealToken(t, primaryKey, primaryIV, testFuture, "/a"),
		HasQueryToken: true,
	}

	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if result.Reason != ReasonURLMismatch {
		t.Errorf("reason = %v, want %v", result.Reason, ReasonURLMismatch)
	}
	if result.Pattern != "" {
		t.Errorf("pattern = %q, want empty on rejection", result.Pattern)
	}
}

func TestVerifyWildcardToken(t *testing.T) {
	keys := testKeySet(t)
	token := sealToken(t, primaryKey, primaryIV, testFuture, "/media/*")

	for path, want := range map[string]Outcome{
		"/media/a.mp4":     Accepted,
		"/media/sub/b.mp4": Accepted,
		"/elsewhere/c.mp4": Malformed,
	} {
		req := Request{Path: path, QueryToken: token, HasQueryToken: true}
		if result := VerifyAt(req, SourceQuery, keys, testNow); result.Outcome != want {
			t.Errorf("path %q: outcome = %v, want %v", path, result.Outcome, want)
		}
	}
}

func TestVerifyQueryAbsent(t *testing.T) {
	keys := testKeySet(t)
	req := Request{Path: "/a"}

	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if result.Reason != ReasonNoCandidate {
		t.Errorf("reason = %v, want %v", result.Reason, ReasonNoCandidate)
	}
	if result.Candidate != -1 {
		t.Errorf("candidate = %d, want -1", result.Candidate)
	}
}

func TestVerifyCookieFallback(t *testing.T) {
	// Both sources enabled, no query parameter: the cookie list must
	// be consulted instead of rejecting over the missing parameter.
	keys := testKeySet(t)
	req := Request{
		Path:         "/a",
		CookieTokens: []string{sealToken(t, primaryKey, primaryIV, testFuture, "/a")},
	}

	result := VerifyAt(req, SourceQuery|SourceCookie, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Source != SourceCookie {
		t.Errorf("source = %v, want %v", result.Source, SourceCookie)
	}
}

func TestVerifyPresentQueryNeverFallsBack(t *testing.T) {
	// An invalid query token is terminal even when a valid cookie is
	// waiting: fallback is for an absent parameter only.
	keys := testKeySet(t)
	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, rogueKey, rogueIV, testFuture, "/a"),
		HasQueryToken: true,
		CookieTokens:  []string{sealToken(t, primaryKey, primaryIV, testFuture, "/a")},
	}

	result := VerifyAt(req, SourceQuery|SourceCookie, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if result.Source != SourceQuery {
		t.Errorf("source = %v, want %v", result.Source, SourceQuery)
	}
	for _, attempt := range result.Attempts {
		if attempt.Source != SourceQuery {
			t.Errorf("attempt against %v, cookie must not be consulted", attempt.Source)
		}
	}
}

func TestVerifyCookieCandidateFallback(t *testing.T) {
	// Three cookie candidates: the first two fail integrity under
	// both generations, the third verifies under the secondary. The
	// trace must show both generations tried on each failed
	// candidate.
	keys := testKeySet(t)
	req := Request{
		Path: "/a",
		CookieTokens: []string{
			sealToken(t, rogueKey, rogueIV, testFuture, "/a"),
			sealToken(t, rogueKey, rogueIV, testFuture, "/b"),
			sealToken(t, secondaryKey, secondaryIV, testFuture, "/a"),
		},
	}

	result := VerifyAt(req, SourceCookie, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Candidate != 2 {
		t.Errorf("candidate = %d, want 2", result.Candidate)
	}
	if result.Generation != 1 {
		t.Errorf("generation = %d, want 1", result.Generation)
	}

	// Expected trace: candidates 0 and 1 each tried with generations
	// 0 and 1, candidate 2 fails generation 0 and accepts with 1.
	want := []Attempt{
		{Source: SourceCookie, Candidate: 0, Generation: 0},
		{Source: SourceCookie, Candidate: 0, Generation: 1},
		{Source: SourceCookie, Candidate: 1, Generation: 0},
		{Source: SourceCookie, Candidate: 1, Generation: 1},
		{Source: SourceCookie, Candidate: 2, Generation: 0},
		{Source: SourceCookie, Candidate: 2, Generation: 1},
	}
	if len(result.Attempts) != len(want) {
		t.Fatalf("attempts = %d, want %d: %+v", len(result.Attempts), len(want), result.Attempts)
	}
	for i, attempt := range result.Attempts {
		if attempt.Source != want[i].Source || attempt.Candidate != want[i].Candidate || attempt.Generation != want[i].Generation {
			t.Errorf("attempt %d = %+v, want candidate %d generation %d", i, attempt, want[i].Candidate, want[i].Generation)
		}
	}
	if last := result.Attempts[len(result.Attempts)-1]; last.Reason != ReasonNone {
		t.Errorf("final attempt reason = %v, want %v", last.Reason, ReasonNone)
	}
	for _, attempt := range result.Attempts[:len(result.Attempts)-1] {
		if attempt.Reason == ReasonNone {
			t.Errorf("attempt %+v accepted before the final candidate", attempt)
		}
	}
}

func TestVerifyExpiredCookieAdvances(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path: "/a",
		CookieTokens: []string{
			sealToken(t, primaryKey, primaryIV, testPast, "/a"),
			sealToken(t, primaryKey, primaryIV, testFuture, "/a"),
		},
	}

	result := VerifyAt(req, SourceCookie, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Candidate != 1 {
		t.Errorf("candidate = %d, want 1", result.Candidate)
	}
}

func TestVerifyLastCandidateDecidesOutcome(t *testing.T) {
	keys := testKeySet(t)
	expiredToken := sealToken(t, primaryKey, primaryIV, testPast, "/a")
	garbageToken := sealToken(t, rogueKey, rogueIV, testFuture, "/a")

	// Garbage then expired: the exhausted list ends on an expiry
	// failure, so the disposition is Expired.
	req := Request{Path: "/a", CookieTokens: []string{garbageToken, expiredToken}}
	if result := VerifyAt(req, SourceCookie, keys, testNow); result.Outcome != Expired {
		t.Errorf("garbage,expired: outcome = %v, want %v", result.Outcome, Expired)
	}

	// Expired then garbage: ends on an integrity failure.
	req = Request{Path: "/a", CookieTokens: []string{expiredToken, garbageToken}}
	if result := VerifyAt(req, SourceCookie, keys, testNow); result.Outcome != Malformed {
		t.Errorf("expired,garbage: outcome = %v, want %v", result.Outcome, Malformed)
	}
}

func TestVerifyBadHexIsTerminal(t *testing.T) {
	// A candidate that is not even hex rejects the request outright;
	// the valid cookie behind it is never consulted.
	keys := testKeySet(t)
	req := Request{
		Path: "/a",
		CookieTokens: []string{
			"abc",
			sealToken(t, primaryKey, primaryIV, testFuture, "/a"),
		},
	}

	result := VerifyAt(req, SourceCookie, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if result.Reason != ReasonBadHex {
		t.Errorf("reason = %v, want %v", result.Reason, ReasonBadHex)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (no advance past bad hex)", len(result.Attempts))
	}
}

func TestVerifyEmptyQueryValue(t *testing.T) {
	// "?pta=" carries an empty value: present but undecodable.
	keys := testKeySet(t)
	req := Request{Path: "/a", QueryToken: "", HasQueryToken: true}

	result := VerifyAt(req, SourceQuery|SourceCookie, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if result.Reason != ReasonBadHex {
		t.Errorf("reason = %v, want %v", result.Reason, ReasonBadHex)
	}
	if result.Source != SourceQuery {
		t.Errorf("source = %v, want %v (no fallback for present parameter)", result.Source, SourceQuery)
	}
}

func TestVerifyBadLengthAdvances(t *testing.T) {
	// A hex-valid candidate of the wrong block size fails soft and
	// the next cookie is tried.
	keys := testKeySet(t)
	req := Request{
		Path: "/a",
		CookieTokens: []string{
			"00112233445566", // 7 bytes, not a block multiple
			sealToken(t, primaryKey, primaryIV, testFuture, "/a"),
		},
	}

	result := VerifyAt(req, SourceCookie, keys, testNow)
	if result.Outcome != Accepted {
		t.Fatalf("outcome = %v (%v), want %v", result.Outcome, result.Reason, Accepted)
	}
	if result.Candidate != 1 {
		t.Errorf("candidate = %d, want 1", result.Candidate)
	}
	if result.Attempts[0].Generation != -1 || result.Attempts[0].Reason != ReasonBadLength {
		t.Errorf("first attempt = %+v, want candidate-level bad length", result.Attempts[0])
	}
}

func TestVerifyNoKeys(t *testing.T) {
	req := Request{Path: "/a", QueryToken: "00", HasQueryToken: true}

	if result := VerifyAt(req, SourceQuery, nil, testNow); result.Outcome != Internal || result.Reason != ReasonNoKeys {
		t.Errorf("nil key set: outcome = %v reason = %v, want %v/%v", result.Outcome, result.Reason, Internal, ReasonNoKeys)
	}
	if result := VerifyAt(req, SourceQuery, &KeySet{}, testNow); result.Outcome != Internal {
		t.Errorf("empty key set: outcome = %v, want %v", result.Outcome, Internal)
	}
}

func TestVerifyNoSources(t *testing.T) {
	keys := testKeySet(t)
	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, primaryKey, primaryIV, testFuture, "/a"),
		HasQueryToken: true,
	}

	result := VerifyAt(req, 0, keys, testNow)
	if result.Outcome != Malformed || result.Reason != ReasonNoCandidate {
		t.Errorf("outcome = %v reason = %v, want %v/%v", result.Outcome, result.Reason, Malformed, ReasonNoCandidate)
	}
}

func TestVerifyEmptyCookieList(t *testing.T) {
	keys := testKeySet(t)
	req := Request{Path: "/a"}

	result := VerifyAt(req, SourceCookie, keys, testNow)
	if result.Outcome != Malformed || result.Reason != ReasonNoCandidate {
		t.Errorf("outcome = %v reason = %v, want %v/%v", result.Outcome, result.Reason, Malformed, ReasonNoCandidate)
	}
}

func TestVerifySingleGeneration(t *testing.T) {
	// A set without a secondary tries exactly one generation per
	// candidate.
	primary, err := NewKeyMaterial(primaryKey, primaryIV)
	if err != nil {
		t.Fatalf("material: %v", err)
	}
	keys, err := NewKeySet(primary)
	if err != nil {
		t.Fatalf("key set: %v", err)
	}

	req := Request{
		Path:          "/a",
		QueryToken:    sealToken(t, secondaryKey, secondaryIV, testFuture, "/a"),
		HasQueryToken: true,
	}
	result := VerifyAt(req, SourceQuery, keys, testNow)
	if result.Outcome != Malformed {
		t.Fatalf("outcome = %v, want %v", result.Outcome, Malformed)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(result.Attempts))
	}
}

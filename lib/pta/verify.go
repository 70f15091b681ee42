// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package pta

import "time"

// Sources is the set of request surfaces consulted for candidate
// tokens. With both enabled the query parameter is primary and
// cookies are the fallback, consulted only when the parameter is
// absent from the request.
type Sources int

const (
	// SourceQuery is the pta query string parameter.
	SourceQuery Sources = 1 << iota

	// SourceCookie is the set of pta cookies, in header order.
	SourceCookie
)

// String returns "query", "cookie", "query+cookie", or "none".
func (s Sources) String() string {
	switch s {
	case SourceQuery:
		return "query"
	case SourceCookie:
		return "cookie"
	case SourceQuery | SourceCookie:
		return "query+cookie"
	case 0:
		return "none"
	}
	return "invalid"
}

// Outcome is the final disposition of one request's verification.
type Outcome int

const (
	// Malformed means no candidate survived decryption, integrity,
	// and url checks. The zero value, so an empty Result fails
	// closed.
	Malformed Outcome = iota

	// Expired means the decisive candidate was authentic but its
	// deadline has passed.
	Expired

	// Accepted means a candidate decrypted, passed integrity, is in
	// time, and its pattern covers the request path.
	Accepted

	// Internal means verification could not run at all. With
	// load-validated configuration this does not occur.
	Internal
)

// String returns "malformed", "expired", "accepted", or "internal".
func (o Outcome) String() string {
	switch o {
	case Malformed:
		return "malformed"
	case Expired:
		return "expired"
	case Accepted:
		return "accepted"
	case Internal:
		return "internal"
	}
	return "unknown"
}

// Reason pins down the check that decided an outcome.
type Reason int

const (
	// ReasonNone marks an accepting attempt.
	ReasonNone Reason = iota

	// ReasonNoCandidate means the selected sources yielded no token:
	// the query parameter was absent or the cookie list empty.
	ReasonNoCandidate

	// ReasonBadHex means the candidate was empty or of odd length.
	// Such a request is rejected outright; later candidates are not
	// consulted.
	ReasonBadHex

	// ReasonBadLength means the ciphertext was not a whole, non-zero
	// number of AES blocks, or was longer than any valid token.
	ReasonBadLength

	// ReasonBadPadding means the padding value was outside 1..16 or
	// claimed more padding than the token body holds.
	ReasonBadPadding

	// ReasonURLTooLong means the derived url length exceeded the
	// 8192-byte cap.
	ReasonURLTooLong

	// ReasonChecksum means the recomputed CRC-32 disagreed with the
	// stored checksum.
	ReasonChecksum

	// ReasonExpired means the token deadline was before now.
	ReasonExpired

	// ReasonURLMismatch means the token pattern did not cover the
	// request path.
	ReasonURLMismatch

	// ReasonNoKeys means the key set held no generations.
	ReasonNoKeys
)

// String returns a short identifier for logs and the journal.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoCandidate:
		return "no candidate"
	case ReasonBadHex:
		return "bad hex"
	case ReasonBadLength:
		return "bad length"
	case ReasonBadPadding:
		return "bad padding"
	case ReasonURLTooLong:
		return "url too long"
	case ReasonChecksum:
		return "checksum mismatch"
	case ReasonExpired:
		return "expired"
	case ReasonURLMismatch:
		return "url mismatch"
	case ReasonNoKeys:
		return "no keys"
	}
	return "unknown"
}

// Request is the engine's view of one HTTP request, assembled by the
// host layer.
type Request struct {
	// Path is the request path matched against the token pattern.
	Path string

	// QueryToken is the raw value of the pta query parameter.
	// HasQueryToken distinguishes an empty value from an absent
	// parameter; absence is what triggers cookie fallback.
	QueryToken    string
	HasQueryToken bool

	// CookieTokens are the pta cookie values in header order.
	CookieTokens []string
}

// Attempt records one verification step against one candidate. The
// sequence of attempts is the evaluation trace: it shows every key
// generation tried on every candidate and where each one stopped.
type Attempt struct {
	// Source and Candidate identify the token the attempt ran
	// against.
	Source    Sources
	Candidate int

	// Generation is the key generation index used, or -1 when the
	// candidate failed before any decryption.
	Generation int

	// Reason is why the attempt stopped; ReasonNone marks the
	// accepting attempt.
	Reason Reason
}

// Result describes the outcome of one verification, including the
// evaluation trace. The trace supports audit logging and the decision
// journal.
type Result struct {
	// Outcome decides the HTTP disposition.
	Outcome Outcome

	// Reason is the decisive check: the accepting one, or the failure
	// of the last candidate examined.
	Reason Reason

	// Source is where candidates were drawn from; zero when no
	// source was enabled.
	Source Sources

	// Candidate is the index of the decisive candidate within its
	// source, -1 when none was extracted.
	Candidate int

	// Generation is the key generation that decrypted the decisive
	// candidate, -1 when none did.
	Generation int

	// Deadline is the decisive token's expiry in Unix seconds. Set on
	// acceptance and on authentic-but-expired rejections, zero
	// otherwise.
	Deadline uint64

	// Pattern is the accepted token's url pattern. Only set on
	// acceptance.
	Pattern string

	// Attempts is the evaluation trace, in order.
	Attempts []Attempt
}

// Verify runs the verification state machine for one request. The
// query parameter (when enabled) is authoritative if present;
// otherwise each pta cookie is tried in header order. Every candidate
// is tried against each key generation before the next candidate is
// considered.
func Verify(req Request, sources Sources, keys *KeySet) Result {
	return VerifyAt(req, sources, keys, time.Now())
}

// VerifyAt is like Verify but takes an explicit time for deadline
// checks. This supports deterministic testing.
func VerifyAt(req Request, sources Sources, keys *KeySet, now time.Time) Result {
	if keys == nil || len(keys.generations) == 0 {
		return Result{Outcome: Internal, Reason: ReasonNoKeys, Candidate: -1, Generation: -1}
	}

	source, candidates := selectSource(req, sources)
	result := Result{
		Outcome:    Malformed,
		Reason:     ReasonNoCandidate,
		Source:     source,
		Candidate:  -1,
		Generation: -1,
	}
	if len(candidates) == 0 {
		return result
	}

	for i, candidate := range candidates {
		result.Candidate = i
		result.Generation = -1
		result.Deadline = 0

		ciphertext, reason := decodeHex(candidate)
		if reason != ReasonNone {
			result.Reason = reason
			result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: -1, Reason: reason})
			return result
		}

		if reason := checkTokenSize(len(ciphertext)); reason != ReasonNone {
			result.Reason = reason
			result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: -1, Reason: reason})
			continue
		}

		// Try every key generation in order; the first one that
		// decrypts to a checksummed token wins this candidate.
		verified := -1
		var tok token
		for g := range keys.generations {
			plain := decryptToken(keys.generations[g], ciphertext)
			decoded, reason := decodeToken(plain)
			if reason != ReasonNone {
				result.Reason = reason
				result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: g, Reason: reason})
				continue
			}
			tok = decoded
			verified = g
			break
		}
		if verified < 0 {
			continue
		}
		result.Generation = verified

		if expired(tok.deadline, now) {
			result.Reason = ReasonExpired
			result.Deadline = tok.deadline
			result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: verified, Reason: ReasonExpired})
			continue
		}

		if !matchURL(tok.pattern, []byte(req.Path)) {
			result.Reason = ReasonURLMismatch
			result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: verified, Reason: ReasonURLMismatch})
			continue
		}

		result.Outcome = Accepted
		result.Reason = ReasonNone
		result.Deadline = tok.deadline
		result.Pattern = string(tok.pattern)
		result.Attempts = append(result.Attempts, Attempt{Source: source, Candidate: i, Generation: verified, Reason: ReasonNone})
		return result
	}

	// Exhausted. The last candidate's failure decides between the
	// expired and malformed dispositions.
	if result.Reason == ReasonExpired {
		result.Outcome = Expired
	}
	return result
}

// selectSource picks the token source and its ordered candidate list.
// With both sources enabled the cookie list is a fallback used only
// when the query parameter is absent; a present but invalid parameter
// never falls back.
func selectSource(req Request, sources Sources) (Sources, []string) {
	if sources&SourceQuery != 0 {
		if req.HasQueryToken {
			return SourceQuery, []string{req.QueryToken}
		}
		if sources&SourceCookie == 0 {
			return SourceQuery, nil
		}
	}
	if sources&SourceCookie != 0 {
		return SourceCookie, req.CookieTokens
	}
	return 0, nil
}

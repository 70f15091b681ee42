// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net/http"
	"strings"
)

// tokenParam is the query parameter and cookie name carrying the
// token. Matched case-insensitively in both positions.
const tokenParam = "pta"

// isTokenSegment reports whether a raw query segment assigns the
// token parameter. The name must be followed by "="; a bare "pta"
// segment is not an assignment, so the parameter counts as absent and
// cookie fallback applies.
func isTokenSegment(segment string) bool {
	return len(segment) > len(tokenParam) &&
		strings.EqualFold(segment[:len(tokenParam)], tokenParam) &&
		segment[len(tokenParam)] == '='
}

// queryToken extracts the raw token value from a raw query string.
// Segments are "&"-separated and the value is returned undecoded:
// the wire format is hex, which percent-encoding never mangles, and
// decoding would corrupt tokens containing a literal "%". The first
// assignment wins.
func queryToken(rawQuery string) (string, bool) {
	if rawQuery == "" {
		return "", false
	}
	for _, segment := range strings.Split(rawQuery, "&") {
		if isTokenSegment(segment) {
			return segment[len(tokenParam)+1:], true
		}
	}
	return "", false
}

// cookieTokens collects every pta cookie value across all Cookie
// headers, in encounter order. Parsed directly rather than through
// http.Request.Cookies, which canonicalizes and drops the ordered
// duplicates the verifier tries as fallback candidates.
func cookieTokens(header http.Header) []string {
	var tokens []string
	for _, line := range header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			name, value, found := strings.Cut(part, "=")
			if !found {
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(name), tokenParam) {
				continue
			}
			tokens = append(tokens, strings.TrimSpace(value))
		}
	}
	return tokens
}

// stripToken removes every token assignment from a raw query string
// along with one adjacent "&" each, leaving all other segments
// byte-for-byte intact. A query left empty means the request URL
// loses its "?" entirely.
func stripToken(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	segments := strings.Split(rawQuery, "&")
	kept := segments[:0]
	for _, segment := range segments {
		if isTokenSegment(segment) {
			continue
		}
		kept = append(kept, segment)
	}
	return strings.Join(kept, "&")
}

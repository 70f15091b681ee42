// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the HTTP front door: it terminates client
// requests, runs token verification for protected path prefixes, and
// forwards accepted requests to the origin (a static content root or
// an upstream server).
//
// The gateway owns everything HTTP-shaped that the verification engine
// in lib/pta deliberately does not: extracting token candidates from
// the query string and Cookie headers, stripping the token from the
// URL before the origin sees it, and mapping verification outcomes to
// status codes. Every decision on a protected path is logged and,
// when a journal is configured, recorded for later inspection.
package gateway

// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package pta verifies pta access tokens: hex-encoded,
// AES-128-CBC-sealed credentials granting time-limited access to URL
// paths.
//
// A token's plaintext layout is [4-byte CRC-32][8-byte deadline][url]
// [padding fill]; the final byte is the padding value (1..16), which
// doubles as the url terminator. Verification decrypts a candidate
// under each configured key generation in order, checks the CRC over
// the raw deadline bytes and url, the deadline against the current
// time, and the embedded url pattern against the request path.
// Candidates come from the pta query parameter or from pta cookies;
// cookie candidates are tried in header order until one verifies.
//
// The package is pure: no I/O, no logging, no clock of its own
// (VerifyAt takes an explicit time). A KeySet is immutable after
// construction and safe for concurrent use across requests.
package pta

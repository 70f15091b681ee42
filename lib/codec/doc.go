// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Ptagate uses two serialization formats with a clear boundary:
//
//   - YAML for operator-facing files: the gateway config and key
//     bundles, read once at startup and meant to be written by hand.
//   - CBOR for machine-facing data: the journal's per-decision detail
//     blob (the verification attempt trace), written on every request
//     and read back by inspection tooling.
//
// This package holds the shared encoding and decoding modes so every
// consumer encodes identically. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, so journal rows for identical traces are
// byte-comparable.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec

// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring loads and validates token decryption key bundles.
//
// A bundle is a small YAML document holding one or two key
// generations, each an AES-128 key and IV as exactly 32 hex
// characters (either case):
//
//	primary:
//	  key: 000102030405060708090a0b0c0d0e0f
//	  iv:  f0e0d0c0b0a090807060504030201000
//	secondary:
//	  key: ...
//	  iv:  ...
//
// The primary generation is required; the secondary exists so tokens
// issued under the previous key keep verifying during rotation.
//
// Bundles may be stored as plaintext YAML or sealed with age
// ([Load] detects the sealed form by its header and unseals through
// mlocked buffers). Validation is strict: a value that is not exactly
// 32 hex characters fails the load with a field-specific error. This
// is deliberately different from the permissive hex handling applied
// to tokens on the wire; key material is operator input and deserves
// loud failures.
//
// Each generation gets a fingerprint: the first 8 bytes of a keyed
// BLAKE3 hash of key||iv, hex encoded. Fingerprints are one-way, so
// logs and journal rows can name the key generation that accepted a
// token without ever exposing key material.
//
// [Bundle] is the raw, still-hex representation used by the keytool
// for generation and rotation. The gateway itself only ever holds a
// validated [Keyring].
package keyring

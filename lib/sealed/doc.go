// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for key bundle files. It covers
// the operations the gateway and keytool need: generate an x25519
// identity, seal a plaintext bundle to one or more recipients, unseal
// a bundle with an identity key, and detect whether a file on disk is
// sealed at all.
//
// Sealed bundles are written in age's native formats: binary by
// default, ASCII armor when requested. [IsSealed] recognizes both by
// their fixed headers, which is how the keyring decides between
// parsing a file as plaintext YAML and unsealing it first.
//
// Identity keys and unsealed plaintext travel in [secret.Buffer]
// values (mmap-backed, locked against swap, excluded from core dumps,
// zeroed on close). Recipients (age1... public keys) are plain strings
// and safe to keep in config files.
package sealed

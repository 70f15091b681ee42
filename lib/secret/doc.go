// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for key material such as
// AES keys, initialization vectors, and age identities.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so released key material does not linger in heap fragments.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeros the source
//   - [ReadFromPath] loads a secret from a file or stdin
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries that require a string).
// After Close, any access panics. Close is idempotent.
//
// [Zero] wipes ordinary heap slices that transiently held secrets, for
// the places a Buffer cannot reach (decoder scratch space, parsed
// config fields).
package secret

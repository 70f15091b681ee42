// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package pta

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"hash/crc32"
	"time"
)

const (
	// checksumSize and deadlineSize are the fixed fields preceding
	// the url region in decrypted plaintext.
	checksumSize = 4
	deadlineSize = 8
	headerSize   = checksumSize + deadlineSize

	// maxURLSize caps the derived url length. Anything longer is
	// rejected rather than truncated, so allocations never scale with
	// attacker-controlled lengths beyond this bound.
	maxURLSize = 8192

	// maxTokenSize is the longest ciphertext any valid token can
	// have: the largest whole number of AES blocks that still admits
	// a url within maxURLSize after the header and at least one
	// padding byte.
	maxTokenSize = 8208
)

// decodeHex converts a hex token string to bytes. Only empty input and
// odd length fail; a character outside 0-9a-fA-F decodes as a zero
// nibble. Issued tokens rely on this leniency, so it is part of the
// wire format rather than an implementation shortcut.
func decodeHex(s string) ([]byte, Reason) {
	if len(s) == 0 || len(s)%2 != 0 {
		return nil, ReasonBadHex
	}
	decoded := make([]byte, len(s)/2)
	for i := range decoded {
		decoded[i] = hexNibble(s[2*i])<<4 | hexNibble(s[2*i+1])
	}
	return decoded, ReasonNone
}

// hexNibble maps one hex digit to its value and any other byte to
// zero.
func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// checkTokenSize rejects ciphertexts that are not a whole, non-zero
// number of AES blocks or that exceed maxTokenSize, so decryption
// cost is bounded by configuration rather than by the request.
func checkTokenSize(n int) Reason {
	if n == 0 || n%aes.BlockSize != 0 || n > maxTokenSize {
		return ReasonBadLength
	}
	return ReasonNone
}

// decryptToken runs AES-128-CBC over the ciphertext with no padding
// removal; the plaintext keeps the padding fill for the decoder to
// interpret. A fresh block mode per call keeps generations and
// concurrent verifications from sharing cipher state.
func decryptToken(generation KeyMaterial, ciphertext []byte) []byte {
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(generation.block, generation.iv[:]).CryptBlocks(plain, ciphertext)
	return plain
}

// token is one decrypted, integrity-checked credential.
type token struct {
	// deadline is the expiry in seconds since the Unix epoch, read
	// big-endian from the wire bytes.
	deadline uint64

	// pattern is the url pattern the token authorizes, truncated at
	// the first padding-value byte.
	pattern []byte
}

// decodeToken validates the plaintext layout and checksum and extracts
// the deadline and url pattern.
//
// The checksum covers the eight deadline bytes exactly as they appear
// on the wire, followed by url[:urlLen]; the expiry check reads the
// same eight bytes as a big-endian integer. Issuers and verifiers
// agree on both readings, so the asymmetry is load-bearing and must
// not be unified.
func decodeToken(plain []byte) (token, Reason) {
	if len(plain) < headerSize+1 {
		return token{}, ReasonBadLength
	}
	padding := plain[len(plain)-1]
	if padding < 1 || padding > 16 {
		return token{}, ReasonBadPadding
	}
	urlLen := len(plain) - headerSize - int(padding)
	if urlLen < 0 {
		return token{}, ReasonBadPadding
	}
	if urlLen > maxURLSize {
		return token{}, ReasonURLTooLong
	}

	// Deadline bytes and url are contiguous, so the checksum input is
	// a single slice of the plaintext.
	sum := crc32.ChecksumIEEE(plain[checksumSize : headerSize+urlLen])
	if sum != binary.BigEndian.Uint32(plain[:checksumSize]) {
		return token{}, ReasonChecksum
	}

	// The padding value terminates the url; a legitimate pattern can
	// never contain it (wire-format constraint).
	pattern := plain[headerSize : headerSize+urlLen]
	if i := bytes.IndexByte(pattern, padding); i >= 0 {
		pattern = pattern[:i]
	}

	return token{
		deadline: binary.BigEndian.Uint64(plain[checksumSize:headerSize]),
		pattern:  pattern,
	}, ReasonNone
}

// expired reports whether the deadline has passed. The boundary is
// inclusive: a request arriving in the deadline second is still in
// time. Comparison stays in the unsigned 64-bit domain.
func expired(deadline uint64, now time.Time) bool {
	return uint64(now.Unix()) > deadline
}

// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package pta

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// KeySize is the byte length of an AES-128 key and of the CBC IV.
const KeySize = 16

// Errors returned by key material construction.
var (
	ErrKeyLength       = errors.New("pta: key must be exactly 16 bytes")
	ErrIVLength        = errors.New("pta: iv must be exactly 16 bytes")
	ErrGenerationCount = errors.New("pta: key set takes one or two generations")
	ErrEmptyGeneration = errors.New("pta: generation has no cipher state, use NewKeyMaterial")
)

// KeyMaterial is one key generation: the AES-128 key and CBC IV that
// tokens of that generation were sealed with. Construct with
// NewKeyMaterial; the zero value is unusable.
type KeyMaterial struct {
	block cipher.Block
	iv    [KeySize]byte
}

// NewKeyMaterial builds one generation from raw key and IV bytes, both
// exactly KeySize long. The inputs are copied (the key into the
// expanded cipher schedule), so the caller may zero its buffers
// afterwards.
func NewKeyMaterial(key, iv []byte) (KeyMaterial, error) {
	if len(key) != KeySize {
		return KeyMaterial{}, ErrKeyLength
	}
	if len(iv) != KeySize {
		return KeyMaterial{}, ErrIVLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("pta: building cipher: %w", err)
	}
	material := KeyMaterial{block: block}
	copy(material.iv[:], iv)
	return material, nil
}

// KeySet is the ordered list of key generations tried during
// verification: the primary first, then the optional secondary kept
// from the previous rotation so tokens issued under it stay valid.
// Immutable after construction; safe for concurrent use.
type KeySet struct {
	generations []KeyMaterial
}

// NewKeySet builds a key set from one or two generations, primary
// first. A deployment without a configured secondary passes just the
// primary; verification then tries a single generation per candidate.
func NewKeySet(generations ...KeyMaterial) (*KeySet, error) {
	if len(generations) < 1 || len(generations) > 2 {
		return nil, ErrGenerationCount
	}
	for _, generation := range generations {
		if generation.block == nil {
			return nil, ErrEmptyGeneration
		}
	}
	return &KeySet{generations: append([]KeyMaterial(nil), generations...)}, nil
}

// Generations reports how many key generations the set holds.
func (k *KeySet) Generations() int {
	return len(k.generations)
}

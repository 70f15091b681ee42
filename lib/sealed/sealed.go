// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/ptagate/ptagate/lib/secret"
)

// binaryIntro is the first line of age's binary format.
const binaryIntro = "age-encryption.org/v1"

// Identity holds an age x25519 identity. The secret key lives in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps). The recipient is a plain string, safe to publish.
//
// The caller must call Close when the identity is no longer needed.
type Identity struct {
	// Key is the secret key in AGE-SECRET-KEY-1... format, stored in
	// mmap memory outside the Go heap. Never log it, write it to disk
	// unprotected, or pass it on a command line.
	Key *secret.Buffer

	// Recipient is the corresponding public key in age1... format.
	// Safe to publish and to keep in config files.
	Recipient string
}

// Close releases the secret key memory (zeros, unlocks, unmaps).
// Idempotent.
func (i *Identity) Close() error {
	if i.Key != nil {
		return i.Key.Close()
	}
	return nil
}

// GenerateIdentity generates a new age x25519 identity. The secret key
// is moved into a secret.Buffer immediately; the transient heap string
// produced by the age library is unavoidable and dies with the garbage
// collector, the buffer is the durable copy.
//
// The caller must call Close on the returned Identity when done.
func GenerateIdentity() (*Identity, error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}

	key, err := secret.NewFromBytes([]byte(generated.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting identity key: %w", err)
	}

	return &Identity{
		Key:       key,
		Recipient: generated.Recipient().String(),
	}, nil
}

// Seal encrypts a plaintext key bundle to one or more recipients given
// as age public key strings (age1... format). The result is age's
// binary format, or ASCII armor when armored is true, ready to write
// to a bundle file.
//
// At least one recipient is required. For key bundles the recipients
// are typically the gateway host's key plus an operator escrow key.
func Seal(plaintext []byte, recipientKeys []string, armored bool) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var sealedBuffer bytes.Buffer
	var destination io.Writer = &sealedBuffer
	var armorWriter io.WriteCloser
	if armored {
		armorWriter = armor.NewWriter(&sealedBuffer)
		destination = armorWriter
	}

	writer, err := age.Encrypt(destination, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing seal: %w", err)
	}
	if armorWriter != nil {
		if err := armorWriter.Close(); err != nil {
			return nil, fmt.Errorf("finalizing armor: %w", err)
		}
	}

	return sealedBuffer.Bytes(), nil
}

// Unseal decrypts a sealed bundle using the given identity key. Both
// binary and armored inputs are accepted. The plaintext is returned in
// a secret.Buffer (mmap-backed, zeroed on close).
//
// The identity key is borrowed and is not closed by this function. The
// caller must call Close on the returned buffer when the plaintext is
// no longer needed.
func Unseal(data []byte, identityKey *secret.Buffer) (*secret.Buffer, error) {
	// The buffer becomes a string at the API boundary because the age
	// parser requires one. The heap copy is brief and call-scoped.
	identity, err := age.ParseX25519Identity(identityKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing identity key: %w", err)
	}

	var source io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(data, []byte(armor.Header)) {
		source = armor.NewReader(source)
	}

	reader, err := age.Decrypt(source, identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading unsealed plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("unsealed bundle is empty")
	}

	// NewFromBytes zeros the heap copy after moving the plaintext into
	// mmap-backed memory.
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting unsealed plaintext: %w", err)
	}
	return buffer, nil
}

// IsSealed reports whether data looks like an age-sealed bundle, in
// either binary or armored form. A plaintext YAML bundle never starts
// with either header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(binaryIntro)) ||
		bytes.HasPrefix(data, []byte(armor.Header))
}

// ValidateRecipient checks that a string is a valid age x25519 public
// key. Useful for rejecting bad --seal-to arguments before touching
// any key material.
func ValidateRecipient(recipientKey string) error {
	if _, err := age.ParseX25519Recipient(recipientKey); err != nil {
		return fmt.Errorf("invalid age recipient: %w", err)
	}
	return nil
}

// ValidateIdentity checks that a secret.Buffer holds a valid age
// x25519 identity key.
func ValidateIdentity(identityKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(identityKey.String()); err != nil {
		return fmt.Errorf("invalid age identity: %w", err)
	}
	return nil
}

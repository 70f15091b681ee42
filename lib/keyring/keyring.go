// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/ptagate/ptagate/lib/pta"
	"github.com/ptagate/ptagate/lib/sealed"
	"github.com/ptagate/ptagate/lib/secret"
)

// fingerprintDomainKey is the BLAKE3 keyed-hash domain key for
// generation fingerprints: the ASCII domain name zero-padded to
// 32 bytes. Changing it changes every logged fingerprint.
var fingerprintDomainKey = [32]byte{
	'p', 't', 'a', 'g', 'a', 't', 'e', '.', 'k', 'e', 'y', 'r', 'i', 'n', 'g', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0,
}

// Bundle is the plaintext YAML representation of a key bundle. The
// keytool manipulates bundles directly (generate, rotate); the gateway
// never holds one, it goes straight to a validated Keyring via Load.
type Bundle struct {
	// Primary is the generation tried first during verification.
	// Required.
	Primary *BundleGeneration `yaml:"primary"`

	// Secondary is the previous generation, kept so tokens issued
	// before a rotation keep verifying. Optional.
	Secondary *BundleGeneration `yaml:"secondary,omitempty"`
}

// BundleGeneration is one key generation in bundle form: AES-128 key
// and IV, each exactly 32 hex characters.
type BundleGeneration struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

// Generation describes one validated key generation. It carries no key
// material, only the audit fingerprint.
type Generation struct {
	// Name is "primary" or "secondary".
	Name string

	// Fingerprint is the first 8 bytes of the keyed BLAKE3 hash of
	// key||iv, hex encoded. Safe for logs and journal rows.
	Fingerprint string
}

// Keyring is a validated key bundle ready for verification: the
// engine's KeySet plus per-generation fingerprints for audit output.
// Immutable after construction and safe for concurrent use.
type Keyring struct {
	keySet      *pta.KeySet
	generations []Generation
}

// KeySet returns the engine key set, generations in trial order.
func (k *Keyring) KeySet() *pta.KeySet {
	return k.keySet
}

// Generations returns the validated generations in trial order.
func (k *Keyring) Generations() []Generation {
	out := make([]Generation, len(k.generations))
	copy(out, k.generations)
	return out
}

// Fingerprint returns the fingerprint of the given generation index,
// or "" when the index is out of range (including the engine's -1 for
// "no generation accepted").
func (k *Keyring) Fingerprint(generation int) string {
	if generation < 0 || generation >= len(k.generations) {
		return ""
	}
	return k.generations[generation].Fingerprint
}

// ParseBundle decodes bundle YAML without validating key material.
// Use Bundle.Keyring for validation; the keytool parses first so it
// can rotate even bundles it is about to rewrite.
func ParseBundle(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parsing key bundle: %w", err)
	}
	return &bundle, nil
}

// Marshal renders the bundle as YAML.
func (b *Bundle) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding key bundle: %w", err)
	}
	return data, nil
}

// Keyring validates the bundle and builds the verification keyring.
// Every key and IV must be exactly 32 hex characters; the primary
// generation is required. Errors name the offending field.
func (b *Bundle) Keyring() (*Keyring, error) {
	if b.Primary == nil {
		return nil, fmt.Errorf("key bundle: primary generation is required")
	}

	primary, primaryFingerprint, err := buildGeneration("primary", b.Primary)
	if err != nil {
		return nil, err
	}
	materials := []pta.KeyMaterial{primary}
	generations := []Generation{{Name: "primary", Fingerprint: primaryFingerprint}}

	if b.Secondary != nil {
		secondary, secondaryFingerprint, err := buildGeneration("secondary", b.Secondary)
		if err != nil {
			return nil, err
		}
		materials = append(materials, secondary)
		generations = append(generations, Generation{Name: "secondary", Fingerprint: secondaryFingerprint})
	}

	keySet, err := pta.NewKeySet(materials...)
	if err != nil {
		return nil, fmt.Errorf("key bundle: %w", err)
	}

	return &Keyring{keySet: keySet, generations: generations}, nil
}

// Parse decodes and validates a plaintext bundle in one step.
//
// The YAML decoder copies the hex values into ordinary heap strings;
// those are immutable and die with the garbage collector. The decoded
// raw key bytes are zeroed as soon as the cipher state is built.
func Parse(data []byte) (*Keyring, error) {
	bundle, err := ParseBundle(data)
	if err != nil {
		return nil, err
	}
	return bundle.Keyring()
}

// Load reads a bundle file and returns the validated keyring. A file
// that carries an age header (binary or armored) is unsealed first,
// which requires identityPath to name a file holding the age identity
// key. Plaintext bundles ignore identityPath.
func Load(path, identityPath string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key bundle: %w", err)
	}

	if !sealed.IsSealed(data) {
		defer secret.Zero(data)
		return Parse(data)
	}

	if identityPath == "" {
		return nil, fmt.Errorf("key bundle %s is sealed but no identity file is configured", path)
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	defer identity.Close()

	plaintext, err := sealed.Unseal(data, identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing key bundle %s: %w", path, err)
	}
	defer plaintext.Close()

	return Parse(plaintext.Bytes())
}

// NewRandomGeneration returns a fresh generation with key and IV drawn
// from crypto/rand, hex encoded for the bundle format.
func NewRandomGeneration() (*BundleGeneration, error) {
	key := make([]byte, pta.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("drawing random key: %w", err)
	}
	defer secret.Zero(key)

	iv := make([]byte, pta.KeySize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("drawing random iv: %w", err)
	}
	defer secret.Zero(iv)

	return &BundleGeneration{
		Key: hex.EncodeToString(key),
		IV:  hex.EncodeToString(iv),
	}, nil
}

// Rotate replaces the primary generation with a fresh random one. The
// old primary becomes the secondary so tokens it sealed stay valid
// through the rollover; the old secondary is retired.
func (b *Bundle) Rotate() error {
	if b.Primary == nil {
		return fmt.Errorf("key bundle: primary generation is required")
	}
	replacement, err := NewRandomGeneration()
	if err != nil {
		return err
	}
	b.Secondary = b.Primary
	b.Primary = replacement
	return nil
}

// buildGeneration validates one generation entry and returns the cipher
// state plus the audit fingerprint. The decoded key bytes are zeroed
// before returning; the cipher block and fingerprint are the only
// surviving derivatives.
func buildGeneration(name string, entry *BundleGeneration) (pta.KeyMaterial, string, error) {
	key, err := decodeKeyHex(name+".key", entry.Key)
	if err != nil {
		return pta.KeyMaterial{}, "", err
	}
	defer secret.Zero(key)

	iv, err := decodeKeyHex(name+".iv", entry.IV)
	if err != nil {
		return pta.KeyMaterial{}, "", err
	}
	defer secret.Zero(iv)

	material, err := pta.NewKeyMaterial(key, iv)
	if err != nil {
		return pta.KeyMaterial{}, "", fmt.Errorf("key bundle: %s: %w", name, err)
	}
	return material, fingerprint(key, iv), nil
}

// decodeKeyHex decodes a bundle hex value under the strict rule:
// exactly 32 hex characters, either case. Unlike token hex on the
// wire, operator-provided key material gets no leniency.
func decodeKeyHex(field, value string) ([]byte, error) {
	if len(value) != 2*pta.KeySize {
		return nil, fmt.Errorf("key bundle: %s: must be exactly %d hex characters, got %d", field, 2*pta.KeySize, len(value))
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("key bundle: %s: %w", field, err)
	}
	return decoded, nil
}

// fingerprint computes the audit identifier for a generation: the
// first 8 bytes of the keyed BLAKE3 hash of key||iv, hex encoded.
func fingerprint(key, iv []byte) string {
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		// NewKeyed only fails for a wrong key length, which the
		// fixed-size array rules out.
		panic("keyring: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(key)
	hasher.Write(iv)
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}

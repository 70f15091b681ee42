// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"

	"filippo.io/age/armor"
)

func TestGenerateIdentity(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	if !strings.HasPrefix(identity.Key.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("Key = %q, want prefix AGE-SECRET-KEY-1", identity.Key.String())
	}
	if !strings.HasPrefix(identity.Recipient, "age1") {
		t.Errorf("Recipient = %q, want prefix age1", identity.Recipient)
	}
}

func TestGenerateIdentity_Unique(t *testing.T) {
	first, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer first.Close()
	second, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer second.Close()

	if first.Key.String() == second.Key.String() {
		t.Error("two generated identities have identical secret keys")
	}
	if first.Recipient == second.Recipient {
		t.Error("two generated identities have identical recipients")
	}
}

func TestIdentity_Close_Idempotent(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	if err := identity.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := identity.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestSealUnseal_Binary(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	plaintext := []byte("keys:\n  primary:\n    key: 00112233445566778899aabbccddeeff\n")
	sealedData, err := Seal(plaintext, []string{identity.Recipient}, false)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	if !bytes.HasPrefix(sealedData, []byte(binaryIntro)) {
		t.Errorf("sealed data does not start with the binary intro line")
	}
	if !IsSealed(sealedData) {
		t.Error("IsSealed(binary) = false, want true")
	}

	unsealed, err := Unseal(sealedData, identity.Key)
	if err != nil {
		t.Fatalf("Unseal() error: %v", err)
	}
	defer unsealed.Close()
	if !bytes.Equal(unsealed.Bytes(), plaintext) {
		t.Errorf("Unseal() = %q, want %q", unsealed.Bytes(), plaintext)
	}
}

func TestSealUnseal_Armored(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	plaintext := []byte("armored bundle contents")
	sealedData, err := Seal(plaintext, []string{identity.Recipient}, true)
	if err != nil {
		t.Fatalf("Seal(armored) error: %v", err)
	}

	if !bytes.HasPrefix(sealedData, []byte(armor.Header)) {
		t.Errorf("armored output does not start with %q", armor.Header)
	}
	if !IsSealed(sealedData) {
		t.Error("IsSealed(armored) = false, want true")
	}

	unsealed, err := Unseal(sealedData, identity.Key)
	if err != nil {
		t.Fatalf("Unseal(armored) error: %v", err)
	}
	defer unsealed.Close()
	if !bytes.Equal(unsealed.Bytes(), plaintext) {
		t.Errorf("Unseal(armored) = %q, want %q", unsealed.Bytes(), plaintext)
	}
}

func TestSeal_MultipleRecipients(t *testing.T) {
	// A bundle sealed to the gateway host plus an operator escrow key
	// must unseal with either identity independently.
	host, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer host.Close()
	operator, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer operator.Close()

	plaintext := []byte("shared bundle")
	sealedData, err := Seal(plaintext, []string{host.Recipient, operator.Recipient}, false)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	for name, identity := range map[string]*Identity{"host": host, "operator": operator} {
		unsealed, err := Unseal(sealedData, identity.Key)
		if err != nil {
			t.Fatalf("Unseal(%s) error: %v", name, err)
		}
		if !bytes.Equal(unsealed.Bytes(), plaintext) {
			t.Errorf("Unseal(%s) = %q, want %q", name, unsealed.Bytes(), plaintext)
		}
		unsealed.Close()
	}
}

func TestSeal_NoRecipients(t *testing.T) {
	_, err := Seal([]byte("data"), nil, false)
	if err == nil {
		t.Error("Seal() with no recipients should return error")
	}
	if !strings.Contains(err.Error(), "at least one recipient") {
		t.Errorf("error = %v, want 'at least one recipient'", err)
	}
}

func TestSeal_InvalidRecipient(t *testing.T) {
	_, err := Seal([]byte("data"), []string{"not-a-valid-key"}, false)
	if err == nil {
		t.Error("Seal() with invalid recipient should return error")
	}
	if !strings.Contains(err.Error(), "parsing recipient key") {
		t.Errorf("error = %v, want 'parsing recipient key'", err)
	}
}

func TestUnseal_WrongIdentity(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()
	wrong, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer wrong.Close()

	sealedData, err := Seal([]byte("secret"), []string{identity.Recipient}, false)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	if _, err := Unseal(sealedData, wrong.Key); err == nil {
		t.Error("Unseal() with wrong identity should return error")
	}
}

func TestUnseal_Garbage(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	if _, err := Unseal([]byte("this is not an age file"), identity.Key); err == nil {
		t.Error("Unseal() of garbage should return error")
	}
}

func TestUnseal_EmptyPlaintext(t *testing.T) {
	// A bundle file cannot be empty; an unseal that yields no bytes is
	// an error rather than an empty buffer.
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	sealedData, err := Seal([]byte{}, []string{identity.Recipient}, false)
	if err != nil {
		t.Fatalf("Seal(empty) error: %v", err)
	}

	_, err = Unseal(sealedData, identity.Key)
	if err == nil {
		t.Fatal("Unseal(empty) should return error")
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("error = %v, want mention of empty bundle", err)
	}
}

func TestIsSealed_Plaintext(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("keys:\n  primary:\n"),
		[]byte(""),
		[]byte("# comment\nage-encryption.org/v1 mentioned mid-file"),
	} {
		if IsSealed(data) {
			t.Errorf("IsSealed(%q) = true, want false", data)
		}
	}
}

func TestValidateRecipient(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	if err := ValidateRecipient(identity.Recipient); err != nil {
		t.Errorf("ValidateRecipient(valid) error: %v", err)
	}
	if err := ValidateRecipient("not-a-valid-key"); err == nil {
		t.Error("ValidateRecipient(invalid) should return error")
	}
	if err := ValidateRecipient(""); err == nil {
		t.Error("ValidateRecipient(empty) should return error")
	}
}

func TestValidateIdentity(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	if err := ValidateIdentity(identity.Key); err != nil {
		t.Errorf("ValidateIdentity(valid) error: %v", err)
	}
}

func TestSealUnseal_LargeBundle(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	defer identity.Close()

	large := make([]byte, 64*1024)
	for i := range large {
		large[i] = byte(i % 251)
	}

	sealedData, err := Seal(large, []string{identity.Recipient}, false)
	if err != nil {
		t.Fatalf("Seal(large) error: %v", err)
	}

	unsealed, err := Unseal(sealedData, identity.Key)
	if err != nil {
		t.Fatalf("Unseal(large) error: %v", err)
	}
	defer unsealed.Close()
	if !bytes.Equal(unsealed.Bytes(), large) {
		t.Error("Unseal(large) does not match the sealed plaintext")
	}
}

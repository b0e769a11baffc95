package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"testing"
)

// Not valid base64, so it is taken as raw bytes; exactly 32 of them.
const testKey = "local-test-key-32-bytes-long!!!!"

func TestEncryptDataSealsWithGCM(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)

	sealed, err := EncryptData("482913")
	if err != nil {
		t.Fatalf("EncryptData: %v", err)
	}
	if sealed == "482913" {
		t.Fatal("ciphertext equals the plaintext")
	}

	// Open the sealed value by hand to prove it really is AES-256-GCM
	// with the nonce prepended.
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	block, err := aes.NewCipher([]byte(testKey))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("new GCM: %v", err)
	}
	if len(raw) < gcm.NonceSize() {
		t.Fatalf("sealed value shorter than a nonce: %d bytes", len(raw))
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plain) != "482913" {
		t.Errorf("decrypted %q, want the original code", plain)
	}
}

func TestEncryptDataRandomizesNonce(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)

	a, err := EncryptData("482913")
	if err != nil {
		t.Fatalf("first EncryptData: %v", err)
	}
	b, err := EncryptData("482913")
	if err != nil {
		t.Fatalf("second EncryptData: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same code produced identical ciphertexts")
	}
}

func TestEncryptDataRequiresKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	if _, err := EncryptData("482913"); err == nil {
		t.Error("expected an error without ENCRYPTION_KEY")
	}

	t.Setenv("ENCRYPTION_KEY", "too-short")
	if _, err := EncryptData("482913"); err == nil {
		t.Error("expected an error for a key that is not 32 bytes")
	}
}

func TestEncryptDataEmptyInput(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)
	sealed, err := EncryptData("")
	if err != nil {
		t.Fatalf("EncryptData: %v", err)
	}
	if sealed != "" {
		t.Errorf("empty input sealed to %q, want empty", sealed)
	}
}

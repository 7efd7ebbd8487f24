package secrets_test

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/llm-council/council/internal/secrets"
)

func testKey(fill byte) [chacha20poly1305.KeySize]byte {
	var key [chacha20poly1305.KeySize]byte
	for i := range key {
		key[i] = fill
	}
	return key
}

func testNonce(fill byte) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	for i := range nonce {
		nonce[i] = fill
	}
	return nonce
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

func TestSealSecrets_RoundTrip(t *testing.T) {
	key := testKey(0x01)
	nonce := testNonce(0x02)

	sealed, err := secrets.SealSecrets(map[string]string{
		"OPENAI_API_KEY": "sk-test-123456",
		"GEMINI_API_KEY": "gk-test-654321",
	}, key, nonce)
	if err != nil {
		t.Fatalf("SealSecrets failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "secrets.enc")
	if err := writeFile(path, sealed); err != nil {
		t.Fatalf("write sealed file: %v", err)
	}

	loader := secrets.EncryptedFileLoader(path, key)
	vals, err := loader()
	if err != nil {
		t.Fatalf("EncryptedFileLoader failed: %v", err)
	}
	if vals["OPENAI_API_KEY"] != "sk-test-123456" {
		t.Errorf("expected OPENAI_API_KEY to round-trip, got %q", vals["OPENAI_API_KEY"])
	}
	if vals["GEMINI_API_KEY"] != "gk-test-654321" {
		t.Errorf("expected GEMINI_API_KEY to round-trip, got %q", vals["GEMINI_API_KEY"])
	}
}

func TestSealSecrets_WrongNonceSize(t *testing.T) {
	key := testKey(0x01)
	_, err := secrets.SealSecrets(map[string]string{"K": "v"}, key, []byte("tooshort"))
	if err == nil {
		t.Fatal("expected error for undersized nonce")
	}
}

func TestEncryptedFileLoader_WrongKey(t *testing.T) {
	key := testKey(0x01)
	wrongKey := testKey(0x09)
	nonce := testNonce(0x02)

	sealed, err := secrets.SealSecrets(map[string]string{"K": "v"}, key, nonce)
	if err != nil {
		t.Fatalf("SealSecrets failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "secrets.enc")
	if err := writeFile(path, sealed); err != nil {
		t.Fatalf("write sealed file: %v", err)
	}

	if _, err := secrets.EncryptedFileLoader(path, wrongKey)(); err == nil {
		t.Fatal("expected decrypt failure with wrong key")
	}
}

func TestEncryptedFileLoader_TamperedCiphertext(t *testing.T) {
	key := testKey(0x01)
	nonce := testNonce(0x02)

	sealed, err := secrets.SealSecrets(map[string]string{"K": "v"}, key, nonce)
	if err != nil {
		t.Fatalf("SealSecrets failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	path := filepath.Join(t.TempDir(), "secrets.enc")
	if err := writeFile(path, sealed); err != nil {
		t.Fatalf("write sealed file: %v", err)
	}

	if _, err := secrets.EncryptedFileLoader(path, key)(); err == nil {
		t.Fatal("expected decrypt failure on tampered ciphertext")
	}
}

func TestEncryptedFileLoader_FileTooShort(t *testing.T) {
	key := testKey(0x01)
	path := filepath.Join(t.TempDir(), "secrets.enc")
	if err := writeFile(path, []byte("short")); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := secrets.EncryptedFileLoader(path, key)(); err == nil {
		t.Fatal("expected error for file shorter than a nonce")
	}
}

func TestEncryptedFileLoader_MissingFile(t *testing.T) {
	key := testKey(0x01)
	path := filepath.Join(t.TempDir(), "does-not-exist.enc")

	if _, err := secrets.EncryptedFileLoader(path, key)(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

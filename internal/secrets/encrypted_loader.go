package secrets

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedFileLoader returns a Loader that reads a ChaCha20-Poly1305
// sealed secrets file from path and decrypts it with key. The file format
// is a 12-byte nonce followed by the AEAD-sealed JSON object of secret
// name -> value, produced by SealSecrets. Used when API keys are kept
// encrypted at rest in config rather than read from the environment.
func EncryptedFileLoader(path string, key [chacha20poly1305.KeySize]byte) Loader {
	return func() (map[string]string, error) {
		sealed, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied config, not user input
		if err != nil {
			return nil, fmt.Errorf("read encrypted secrets: %w", err)
		}

		aead, err := chacha20poly1305.New(key[:])
		if err != nil {
			return nil, fmt.Errorf("init cipher: %w", err)
		}

		if len(sealed) < aead.NonceSize() {
			return nil, fmt.Errorf("encrypted secrets file too short")
		}
		nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

		plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}

		var values map[string]string
		if err := json.Unmarshal(plaintext, &values); err != nil {
			return nil, fmt.Errorf("parse decrypted secrets: %w", err)
		}
		return values, nil
	}
}

// SealSecrets encrypts values for storage as an EncryptedFileLoader source.
// nonce must be exactly chacha20poly1305.NonceSize bytes; it is prepended to
// the sealed output. The tests pass a fixed nonce.
func SealSecrets(values map[string]string, key [chacha20poly1305.KeySize]byte, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes", aead.NonceSize())
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal secrets: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(append([]byte{}, nonce...), sealed...), nil
}

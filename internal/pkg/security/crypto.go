package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MasterKeyEnv names the environment variable holding a hex encoded key.
const MasterKeyEnv = "NANODOC_MASTER_KEY"

// KeySize is the AES-256 key length.
const KeySize = 32

var ErrInvalidKey = errors.New("master key not initialized or invalid length")

// LoadMasterKey returns the master key from the environment, then from
// keyPath, and generates and saves a new one if neither holds a valid key.
// generated is true when a new key was written.
func LoadMasterKey(keyPath string) (key []byte, generated bool, err error) {
	// 1. Check Environmental Variable
	if envKey := os.Getenv(MasterKeyEnv); envKey != "" {
		key, err := decodeKey(envKey)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", MasterKeyEnv, err)
		}
		return key, false, nil
	}

	// 2. Check Key File
	data, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		key, err := decodeKey(string(data))
		if err != nil {
			return nil, false, fmt.Errorf("key file %s: %w", keyPath, err)
		}
		return key, false, nil
	case !os.IsNotExist(err):
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	// 3. Generate New Key
	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save master key to %s: %w", keyPath, err)
	}
	return key, true, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext using AES-GCM and returns Nonce + Ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Seal returns nonce + ciphertext
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (Nonce + Ciphertext) using AES-GCM.
func Decrypt(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

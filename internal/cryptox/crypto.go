// Package cryptox holds the key derivation and at-rest encryption used for
// locally stored form payloads.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cradle5/cradlesync/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of keys produced by DeriveMasterKey.
const KeySize = 32

var ErrInvalidKey = errors.New("invalid encryption key")

// MakeVerifier returns a value that can be stored to check a master key
// later without storing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey stretches the user's password with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// Sealer encrypts JSON-serialisable values with AES-GCM under a fixed key.
// A fresh random nonce is used for every Seal.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer. The key must be 16, 24 or 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal marshals v to JSON and encrypts it.
func (s *Sealer) Seal(v any) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	nonce = common.GenerateRandByteArray(s.aead.NonceSize())
	return s.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts ciphertext and unmarshals the JSON into v.
func (s *Sealer) Open(ciphertext, nonce []byte, v any) error {
	if len(nonce) != s.aead.NonceSize() {
		return fmt.Errorf("open payload: bad nonce length %d", len(nonce))
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

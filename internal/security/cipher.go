// Package security provides the cipher, key-derivation, and token-signing
// primitives shared by the vault, token service, and RFID authenticator.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// ErrDecryption is returned when an authentication tag fails to verify or an
// envelope is structurally corrupt. Callers must treat it as terminal: no
// partially decrypted data is ever returned alongside it.
var ErrDecryption = errors.New("decryption failed")

// KeySize is the AES-256 key length required by Seal and Open.
const KeySize = 32

// Envelope is one authenticated-encryption layer: ciphertext, nonce, and the
// GCM authentication tag, kept separate so stored envelopes are explicit about
// what is integrity-protected. Layers nest by serializing an inner envelope as
// the plaintext of an outer one.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`
}

// Seal encrypts plaintext with AES-256-GCM under key, using a fresh random
// nonce. key must be exactly KeySize bytes.
func Seal(key, plaintext []byte) (*Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - aead.Overhead()
	return &Envelope{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Open decrypts an envelope sealed with Seal. Any tampering with ciphertext,
// IV, or tag yields ErrDecryption; internal cipher errors are never leaked.
func Open(key []byte, env *Envelope) ([]byte, error) {
	if env == nil || len(env.IV) == 0 || len(env.AuthTag) == 0 {
		return nil, ErrDecryption
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(env.IV) != aead.NonceSize() || len(env.AuthTag) != aead.Overhead() {
		return nil, ErrDecryption
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)
	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errors.New("security: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

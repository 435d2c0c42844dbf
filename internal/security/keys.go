package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// SaltSize is the salt length for passphrase-derived keys.
const SaltSize = 16

// argon2id parameters for passphrase-derived keys (interactive profile).
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// userKeySalt binds HKDF user-key derivation to this module's vault; it is a
// domain separator, not a secret.
var userKeySalt = []byte("membership-crm/vault/user-layer/v1")

// DeriveUserKey derives a per-user AES-256 key via HKDF-SHA256, keyed by
// secret with the user's stable identifier as context. The identifier is
// never stored alongside the envelopes it protects, so reproducing the key
// takes both the secret and the identifier; a database dump alone yields
// neither.
func DeriveUserKey(secret []byte, userID string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, userKeySalt, []byte("document-vault:"+userID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DerivePassphraseKey derives an AES-256 key from a passphrase and salt using
// argon2id. Used by the single-layer payment-proof profile; the salt travels
// beside the envelope.
func DerivePassphraseKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeySize)
}

// NewSalt returns a fresh random salt for DerivePassphraseKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// NewTokenID returns a random 128-bit identifier, hex-encoded. Used as the
// server-side revocation handle for refresh tokens.
func NewTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

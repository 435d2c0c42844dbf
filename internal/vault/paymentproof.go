package vault

import (
	"membership-crm/core/internal/security"
)

// SealedProof is the single-layer profile protecting lower-sensitivity
// payment-proof buffers: the same AEAD primitive, keyed by a passphrase-derived
// key. The salt travels beside the envelope; the passphrase does not.
type SealedProof struct {
	Salt     []byte             `json:"salt"`
	Envelope *security.Envelope `json:"envelope"`
}

// ProofSealer encrypts and decrypts payment-proof buffers with a
// deployment-configured passphrase.
type ProofSealer struct {
	passphrase string
}

// NewProofSealer returns a ProofSealer using the given passphrase.
func NewProofSealer(passphrase string) *ProofSealer {
	return &ProofSealer{passphrase: passphrase}
}

// Seal encrypts plaintext under a key derived from the passphrase and a fresh
// random salt.
func (p *ProofSealer) Seal(plaintext []byte) (*SealedProof, error) {
	salt, err := security.NewSalt()
	if err != nil {
		return nil, err
	}
	key := security.DerivePassphraseKey(p.passphrase, salt)
	env, err := security.Seal(key, plaintext)
	if err != nil {
		return nil, err
	}
	return &SealedProof{Salt: salt, Envelope: env}, nil
}

// Open decrypts a sealed proof, failing closed with ErrDecryption on any
// mismatch or corruption.
func (p *ProofSealer) Open(proof *SealedProof) ([]byte, error) {
	if proof == nil || proof.Envelope == nil || len(proof.Salt) == 0 {
		return nil, ErrDecryption
	}
	key := security.DerivePassphraseKey(p.passphrase, proof.Salt)
	plaintext, err := security.Open(key, proof.Envelope)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

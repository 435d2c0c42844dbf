// Package vault implements layered envelope encryption for archived identity
// documents. No single compromised secret is sufficient to decrypt: reading a
// user's document requires the master key, the pepper, and that user's stable
// identifier. Database exfiltration alone yields nothing.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"membership-crm/core/internal/security"
)

// ErrDecryption mirrors security.ErrDecryption: any layer failing to
// authenticate, or a structurally corrupt envelope, fails the whole operation.
// Partial plaintext is never returned.
var ErrDecryption = security.ErrDecryption

// LayerContext carries the per-call values a layer may derive its key from.
type LayerContext struct {
	UserID string
}

// Layer is one named encryption layer. Layers are applied innermost-first on
// encrypt and outermost-first on decrypt; the ordered list is the single place
// layer composition is defined, so call sites never change when layers do.
type Layer struct {
	Name      string
	DeriveKey func(LayerContext) ([]byte, error)
}

// Vault applies an ordered list of layers over the shared AEAD primitive.
type Vault struct {
	layers []Layer
}

// New returns a Vault with the given layers, innermost first. At least one
// layer is required.
func New(layers []Layer) (*Vault, error) {
	if len(layers) == 0 {
		return nil, errors.New("vault: at least one layer is required")
	}
	return &Vault{layers: layers}, nil
}

// NewDocumentVault builds the three-layer document vault: pepper (deployment
// secret), then a per-user key derived from the master secret and the user's
// identifier (which is never stored beside the envelope), then the master key
// itself as the outermost layer.
func NewDocumentVault(pepperKey, masterKey []byte) (*Vault, error) {
	return New([]Layer{
		{Name: "pepper", DeriveKey: StaticKey(pepperKey)},
		{Name: "user", DeriveKey: func(c LayerContext) ([]byte, error) {
			if c.UserID == "" {
				return nil, errors.New("vault: user layer requires a user id")
			}
			return security.DeriveUserKey(masterKey, c.UserID)
		}},
		{Name: "master", DeriveKey: StaticKey(masterKey)},
	})
}

// StaticKey returns a DeriveKey func for a fixed key (pepper, master).
func StaticKey(key []byte) func(LayerContext) ([]byte, error) {
	return func(LayerContext) ([]byte, error) { return key, nil }
}

// EncryptForUser seals plaintext through every layer in order and returns the
// outermost envelope. Each inner envelope is serialized as the plaintext of
// the next layer.
func (v *Vault) EncryptForUser(plaintext []byte, userID string) (*security.Envelope, error) {
	lctx := LayerContext{UserID: userID}
	payload := plaintext
	var env *security.Envelope
	for _, layer := range v.layers {
		key, err := layer.DeriveKey(lctx)
		if err != nil {
			return nil, fmt.Errorf("vault: derive key for layer %s: %w", layer.Name, err)
		}
		env, err = security.Seal(key, payload)
		if err != nil {
			return nil, fmt.Errorf("vault: seal layer %s: %w", layer.Name, err)
		}
		payload, err = json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("vault: serialize layer %s: %w", layer.Name, err)
		}
	}
	return env, nil
}

// DecryptForUser opens the envelope through every layer in reverse order.
// Fails closed with ErrDecryption on any tag mismatch or structural
// corruption; the caller never sees partially decrypted data.
func (v *Vault) DecryptForUser(env *security.Envelope, userID string) ([]byte, error) {
	if env == nil {
		return nil, ErrDecryption
	}
	lctx := LayerContext{UserID: userID}
	current := env
	var payload []byte
	for i := len(v.layers) - 1; i >= 0; i-- {
		layer := v.layers[i]
		key, err := layer.DeriveKey(lctx)
		if err != nil {
			return nil, fmt.Errorf("vault: derive key for layer %s: %w", layer.Name, err)
		}
		payload, err = security.Open(key, current)
		if err != nil {
			return nil, ErrDecryption
		}
		if i > 0 {
			inner := &security.Envelope{}
			if err := json.Unmarshal(payload, inner); err != nil {
				return nil, ErrDecryption
			}
			current = inner
		}
	}
	return payload, nil
}

// LayerNames returns the configured layer names, innermost first.
func (v *Vault) LayerNames() []string {
	names := make([]string, len(v.layers))
	for i, l := range v.layers {
		names[i] = l.Name
	}
	return names
}

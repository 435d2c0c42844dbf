package security

import (
	"bytes"
	"testing"
)

var testUserKeySecret = []byte("user-key-secret")

func TestDeriveUserKey_Deterministic(t *testing.T) {
	a, err := DeriveUserKey(testUserKeySecret, "user-abc")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	b, err := DeriveUserKey(testUserKeySecret, "user-abc")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same userID derived different keys")
	}
	if len(a) != KeySize {
		t.Errorf("key length = %d, want %d", len(a), KeySize)
	}
}

func TestDeriveUserKey_DistinctPerUser(t *testing.T) {
	a, err := DeriveUserKey(testUserKeySecret, "user-abc")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	b, err := DeriveUserKey(testUserKeySecret, "user-xyz")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("distinct userIDs derived the same key")
	}
}

func TestDeriveUserKey_DistinctPerSecret(t *testing.T) {
	a, err := DeriveUserKey([]byte("secret-one"), "user-abc")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	b, err := DeriveUserKey([]byte("secret-two"), "user-abc")
	if err != nil {
		t.Fatalf("DeriveUserKey: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("distinct secrets derived the same key")
	}
}

func TestDerivePassphraseKey(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	a := DerivePassphraseKey("letmein", salt)
	b := DerivePassphraseKey("letmein", salt)
	if !bytes.Equal(a, b) {
		t.Error("same passphrase+salt derived different keys")
	}

	other, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if bytes.Equal(a, DerivePassphraseKey("letmein", other)) {
		t.Error("different salts derived the same key")
	}
	if bytes.Equal(a, DerivePassphraseKey("changeme", salt)) {
		t.Error("different passphrases derived the same key")
	}
}

func TestNewTokenID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewTokenID()
		if err != nil {
			t.Fatalf("NewTokenID: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("token id length = %d, want 32 hex chars", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate token id %s", id)
		}
		seen[id] = true
	}
}

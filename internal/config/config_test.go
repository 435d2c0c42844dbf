package config

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
	"time"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func setRequiredSecrets() {
	os.Setenv("TOKEN_SIGNING_KEY", "token-secret")
	os.Setenv("RFID_SIGNING_KEY", "rfid-secret")
	os.Setenv("VAULT_MASTER_KEY", validKey())
	os.Setenv("VAULT_PEPPER_KEY", validKey())
	os.Setenv("PAYMENT_PROOF_KEY", "payment-passphrase")
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	setRequiredSecrets()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.TokenIssuer != "membership-crm" {
		t.Errorf("TokenIssuer = %q, want %q", cfg.TokenIssuer, "membership-crm")
	}
	if cfg.TokenAccessTTL != "15m" {
		t.Errorf("TokenAccessTTL = %q, want %q", cfg.TokenAccessTTL, "15m")
	}
	if cfg.MaxSessionsPerUser != 5 {
		t.Errorf("MaxSessionsPerUser = %d, want 5", cfg.MaxSessionsPerUser)
	}
	if cfg.AnalysisQueueSize != 256 {
		t.Errorf("AnalysisQueueSize = %d, want 256", cfg.AnalysisQueueSize)
	}
	if cfg.AuditKafkaTopic != "crm-security-events" {
		t.Errorf("AuditKafkaTopic = %q, want default", cfg.AuditKafkaTopic)
	}
}

func TestLoad_MissingSecretFails(t *testing.T) {
	secrets := []string{
		"TOKEN_SIGNING_KEY",
		"RFID_SIGNING_KEY",
		"VAULT_MASTER_KEY",
		"VAULT_PEPPER_KEY",
		"PAYMENT_PROOF_KEY",
	}
	for _, missing := range secrets {
		t.Run(missing, func(t *testing.T) {
			os.Clearenv()
			setRequiredSecrets()
			os.Unsetenv(missing)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load succeeded without %s", missing)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Errorf("error %q does not name %s", err, missing)
			}
		})
	}
}

func TestLoad_VaultKeyMustBe32Bytes(t *testing.T) {
	os.Clearenv()
	setRequiredSecrets()
	os.Setenv("VAULT_MASTER_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a 16-byte vault key")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	setRequiredSecrets()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("TOKEN_ACCESS_TTL", "5m")
	os.Setenv("MAX_SESSIONS_PER_USER", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if got := cfg.AccessTTL(); got != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", got)
	}
	if cfg.MaxSessionsPerUser != 3 {
		t.Errorf("MaxSessionsPerUser = %d, want 3", cfg.MaxSessionsPerUser)
	}
}

func TestTTLFallbacks(t *testing.T) {
	cfg := &Config{TokenAccessTTL: "bogus", TokenRefreshTTL: ""}
	if got := cfg.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL fallback = %v, want 15m", got)
	}
	if got := cfg.RefreshTTL(); got != 720*time.Hour {
		t.Errorf("RefreshTTL fallback = %v, want 720h", got)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{AuditKafkaBrokers: " b1:9092, b2:9092 ,,"}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "b1:9092" || got[1] != "b2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	cfg = &Config{}
	if got := cfg.KafkaBrokersList(); got != nil {
		t.Errorf("empty brokers: got %v, want nil", got)
	}
}

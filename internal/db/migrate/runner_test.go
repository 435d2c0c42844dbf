package migrate

import (
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	if err := Run("", "up"); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Run with empty DSN: err = %v", err)
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP"} {
		if err := Run("postgres://localhost/x", direction); err == nil || !strings.Contains(err.Error(), "direction") {
			t.Errorf("Run(%q): err = %v", direction, err)
		}
	}
}

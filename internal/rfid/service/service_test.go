package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"membership-crm/core/internal/audit"
	auditdomain "membership-crm/core/internal/audit/domain"
	"membership-crm/core/internal/rfid/domain"
	"membership-crm/core/internal/security"
)

type fakeRepo struct {
	creds map[string]*domain.Credential
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{creds: map[string]*domain.Credential{}}
}

func (f *fakeRepo) Create(ctx context.Context, cred *domain.Credential) error {
	cp := *cred
	f.creds[cred.CardUID] = &cp
	return nil
}

func (f *fakeRepo) GetByCardUID(ctx context.Context, cardUID string) (*domain.Credential, error) {
	cred, ok := f.creds[cardUID]
	if !ok {
		return nil, nil
	}
	cp := *cred
	return &cp, nil
}

func (f *fakeRepo) SetPresence(ctx context.Context, cardUID string, inSpace bool, at time.Time) error {
	cred, ok := f.creds[cardUID]
	if !ok {
		return errors.New("no such card")
	}
	cred.InSpace = inSpace
	if inSpace {
		cred.CheckedInAt = &at
	} else {
		cred.CheckedOutAt = &at
	}
	return nil
}

func (f *fakeRepo) RotateAPIKey(ctx context.Context, cardUID, apiKey string) error {
	cred, ok := f.creds[cardUID]
	if !ok {
		return errors.New("no such card")
	}
	cred.APIKey = apiKey
	return nil
}

type fakeAudit struct {
	events []audit.EventParams
}

func (f *fakeAudit) LogEvent(ctx context.Context, params audit.EventParams) {
	f.events = append(f.events, params)
}

func (f *fakeAudit) last(t *testing.T) audit.EventParams {
	t.Helper()
	if len(f.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return f.events[len(f.events)-1]
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeAudit) {
	t.Helper()
	repo := newFakeRepo()
	auditor := &fakeAudit{}
	signer := security.NewCardSigner([]byte("gate-key"))
	svc := NewService(repo, signer, auditor)
	if err := svc.RegisterCard(context.Background(), "CARD-1", "key-1", "u1"); err != nil {
		t.Fatalf("RegisterCard: %v", err)
	}
	return svc, repo, auditor
}

func TestVerify(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	token, err := svc.IssueCardToken("key-1")
	if err != nil {
		t.Fatalf("IssueCardToken: %v", err)
	}
	apiKey, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if apiKey != "key-1" {
		t.Errorf("apiKey = %q, want key-1", apiKey)
	}
	if _, err := svc.Verify(ctx, "garbage"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("Verify garbage: err = %v, want ErrAuthentication", err)
	}
}

func TestTogglePresence_CheckInThenOut(t *testing.T) {
	svc, repo, auditor := newTestService(t)
	ctx := context.Background()

	token, err := svc.IssueCardToken("key-1")
	if err != nil {
		t.Fatalf("IssueCardToken: %v", err)
	}

	cred, err := svc.TogglePresence(ctx, "CARD-1", token)
	if err != nil {
		t.Fatalf("TogglePresence: %v", err)
	}
	if !cred.InSpace || cred.CheckedInAt == nil {
		t.Errorf("after check-in: InSpace=%v CheckedInAt=%v", cred.InSpace, cred.CheckedInAt)
	}
	event := auditor.last(t)
	if event.Status != auditdomain.StatusSuccess {
		t.Errorf("event status = %s, want SUCCESS", event.Status)
	}
	if meta := event.Metadata.(auditdomain.GateMetadata); meta.Branch != "checkin" {
		t.Errorf("branch = %q, want checkin", meta.Branch)
	}

	cred, err = svc.TogglePresence(ctx, "CARD-1", token)
	if err != nil {
		t.Fatalf("second TogglePresence: %v", err)
	}
	if cred.InSpace || cred.CheckedOutAt == nil {
		t.Errorf("after check-out: InSpace=%v CheckedOutAt=%v", cred.InSpace, cred.CheckedOutAt)
	}
	if meta := auditor.last(t).Metadata.(auditdomain.GateMetadata); meta.Branch != "checkout" {
		t.Errorf("branch = %q, want checkout", meta.Branch)
	}
	if stored := repo.creds["CARD-1"]; stored.InSpace {
		t.Error("stored credential still in space after check-out")
	}
}

func TestTogglePresence_DeniedBranches(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	goodToken, err := svc.IssueCardToken("key-1")
	if err != nil {
		t.Fatalf("IssueCardToken: %v", err)
	}
	otherSigner := security.NewCardSigner([]byte("other-key"))
	forged, err := otherSigner.SignCard("key-1")
	if err != nil {
		t.Fatalf("SignCard: %v", err)
	}
	mismatched, err := svc.IssueCardToken("wrong-key")
	if err != nil {
		t.Fatalf("IssueCardToken: %v", err)
	}

	tests := []struct {
		name     string
		cardUID  string
		token    string
		branch   string
		severity auditdomain.Severity
	}{
		{"missing card uid", "", goodToken, "missing_fields", auditdomain.SeverityInfo},
		{"missing token", "CARD-1", "", "missing_fields", auditdomain.SeverityInfo},
		{"forged signature", "CARD-1", forged, "bad_signature", auditdomain.SeverityWarning},
		{"unregistered card", "CARD-9", goodToken, "unregistered_card", auditdomain.SeverityWarning},
		{"api key mismatch", "CARD-1", mismatched, "key_mismatch", auditdomain.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &fakeAudit{}
			svc.auditor = auditor
			if _, err := svc.TogglePresence(ctx, tt.cardUID, tt.token); !errors.Is(err, ErrAuthentication) {
				t.Fatalf("err = %v, want ErrAuthentication", err)
			}
			event := auditor.last(t)
			if event.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", event.Severity, tt.severity)
			}
			if meta := event.Metadata.(auditdomain.GateMetadata); meta.Branch != tt.branch {
				t.Errorf("branch = %q, want %q", meta.Branch, tt.branch)
			}
		})
	}
}

package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"membership-crm/core/internal/audit"
	auditdomain "membership-crm/core/internal/audit/domain"
	"membership-crm/core/internal/rfid/domain"
	"membership-crm/core/internal/rfid/repository"
	"membership-crm/core/internal/security"
)

// ErrAuthentication is returned for every denied gate interaction. Terminals
// only learn that access was denied; the distinguishing detail lives in the
// audit trail.
var ErrAuthentication = errors.New("rfid: authentication failed")

// EventLogger records gate interactions. Satisfied by *audit.Pipeline.
type EventLogger interface {
	LogEvent(ctx context.Context, params audit.EventParams)
}

// Service authenticates physical RFID terminals and tracks member presence.
type Service struct {
	creds   repository.Repository
	signer  *security.CardSigner
	auditor EventLogger
	now     func() time.Time
}

// NewService wires the gate authenticator. auditor may not be nil: every
// branch of a gate interaction is a security event.
func NewService(creds repository.Repository, signer *security.CardSigner, auditor EventLogger) *Service {
	return &Service{
		creds:   creds,
		signer:  signer,
		auditor: auditor,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks a card token's signature and returns the embedded apiKey.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	apiKey, err := s.signer.ParseCard(token)
	if err != nil {
		return "", ErrAuthentication
	}
	return apiKey, nil
}

// IssueCardToken mints a card token for apiKey during card provisioning.
func (s *Service) IssueCardToken(apiKey string) (string, error) {
	return s.signer.SignCard(apiKey)
}

// RegisterCard stores a new card credential.
func (s *Service) RegisterCard(ctx context.Context, cardUID, apiKey, userID string) error {
	return s.creds.Create(ctx, &domain.Credential{
		CardUID:   cardUID,
		APIKey:    apiKey,
		UserID:    userID,
		CreatedAt: s.now(),
	})
}

// TogglePresence authenticates a gate swipe and flips the member's in-space
// state. The card must present both its UID and a token whose embedded apiKey
// matches the stored one; a leaked UID alone is not enough to toggle
// presence. Every branch emits a distinct audit event.
func (s *Service) TogglePresence(ctx context.Context, cardUID, token string) (*domain.Credential, error) {
	if cardUID == "" || token == "" {
		s.logGate(ctx, "", cardUID, "missing_fields", auditdomain.SeverityInfo)
		return nil, ErrAuthentication
	}

	apiKey, err := s.signer.ParseCard(token)
	if err != nil {
		s.logGate(ctx, "", cardUID, "bad_signature", auditdomain.SeverityWarning)
		return nil, ErrAuthentication
	}

	cred, err := s.creds.GetByCardUID(ctx, cardUID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		s.logGate(ctx, "", cardUID, "unregistered_card", auditdomain.SeverityWarning)
		return nil, ErrAuthentication
	}

	if subtle.ConstantTimeCompare([]byte(cred.APIKey), []byte(apiKey)) != 1 {
		// UID resolves to a real card but the token's key does not match:
		// someone is presenting a cloned or forged card.
		s.logGate(ctx, cred.UserID, cardUID, "key_mismatch", auditdomain.SeverityCritical)
		return nil, ErrAuthentication
	}

	now := s.now()
	inSpace := !cred.InSpace
	if err := s.creds.SetPresence(ctx, cardUID, inSpace, now); err != nil {
		return nil, err
	}
	cred.InSpace = inSpace
	if inSpace {
		cred.CheckedInAt = &now
	} else {
		cred.CheckedOutAt = &now
	}

	branch := "checkout"
	if inSpace {
		branch = "checkin"
	}
	s.auditor.LogEvent(ctx, audit.EventParams{
		EventType: "rfid_gate",
		Action:    auditdomain.ActionCheckIn,
		Status:    auditdomain.StatusSuccess,
		Actor:     cred.UserID,
		Target:    cardUID,
		Metadata:  auditdomain.GateMetadata{CardUID: cardUID, Branch: branch},
	})
	return cred, nil
}

func (s *Service) logGate(ctx context.Context, userID, cardUID, branch string, severity auditdomain.Severity) {
	s.auditor.LogEvent(ctx, audit.EventParams{
		EventType: "rfid_gate",
		Action:    auditdomain.ActionAuthenticate,
		Status:    auditdomain.StatusFailure,
		Severity:  severity,
		Actor:     userID,
		Target:    cardUID,
		Metadata:  auditdomain.GateMetadata{CardUID: cardUID, Branch: branch},
	})
}

// Package service implements the refresh/access token lifecycle: issuance,
// verification, rotation with reuse detection, and multi-device revocation.
package service

import (
	"context"
	"errors"
	"time"

	"membership-crm/core/internal/audit"
	auditdomain "membership-crm/core/internal/audit/domain"
	"membership-crm/core/internal/security"
	"membership-crm/core/internal/token/domain"
	"membership-crm/core/internal/token/repository"
)

// Sentinel errors. ErrReuseDetected must look identical to ErrAuthentication
// at the API boundary; the distinction exists only for internal logging.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrReuseDetected  = errors.New("refresh token reuse detected")
)

// EventLogger is the audit entry point the service needs. Satisfied by
// *audit.Pipeline.
type EventLogger interface {
	LogEvent(ctx context.Context, params audit.EventParams)
}

// ClaimsResolver supplies the email/role claims for a user when rotating,
// since the refresh token carries only the user id. The user store itself is
// an external collaborator.
type ClaimsResolver interface {
	ResolveClaims(ctx context.Context, userID string) (email, role string, err error)
}

// SessionMeta is the device metadata recorded with each session entry.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// Pair is an issued access/refresh token pair. TokenID is the server-side
// revocation handle for the refresh token.
type Pair struct {
	AccessToken     string
	RefreshToken    string
	TokenID         string
	AccessExpiresAt time.Time
}

// Service is the token service. All state lives in the injected repositories;
// correctness under concurrent rotation relies on SessionRepository.Delete
// being an atomic claim, not on process-level locks.
type Service struct {
	sessions    repository.SessionRepository
	blacklist   repository.BlacklistRepository
	signer      *security.TokenSigner
	auditor     EventLogger
	claims      ClaimsResolver
	maxSessions int
	now         func() time.Time
}

// NewService returns a token service with the given dependencies.
func NewService(
	sessions repository.SessionRepository,
	blacklist repository.BlacklistRepository,
	signer *security.TokenSigner,
	auditor EventLogger,
	claims ClaimsResolver,
	maxSessions int,
) *Service {
	return &Service{
		sessions:    sessions,
		blacklist:   blacklist,
		signer:      signer,
		auditor:     auditor,
		claims:      claims,
		maxSessions: maxSessions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccessToken issues a short-lived stateless access token.
func (s *Service) IssueAccessToken(ctx context.Context, userID, email, role string) (string, time.Time, error) {
	return s.signer.SignAccess(userID, email, role)
}

// Verify validates an access token and returns its claims, or
// ErrAuthentication. Stateless: no store lookup.
func (s *Service) Verify(ctx context.Context, accessToken string) (*security.AccessClaims, error) {
	claims, err := s.signer.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrAuthentication
	}
	return claims, nil
}

// IssuePair issues a new access/refresh pair and appends the session entry to
// the user's live list, evicting (and blacklisting) the oldest entry if the
// list exceeds its bound.
func (s *Service) IssuePair(ctx context.Context, userID, email, role string, meta SessionMeta) (*Pair, error) {
	tokenID, err := security.NewTokenID()
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.signer.SignRefresh(userID, tokenID)
	if err != nil {
		return nil, err
	}
	accessToken, accessExp, err := s.signer.SignAccess(userID, email, role)
	if err != nil {
		return nil, err
	}
	rec := &domain.RefreshTokenRecord{
		TokenID:   tokenID,
		UserID:    userID,
		ExpiresAt: refreshExp,
		CreatedAt: s.now(),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.enforceCapacity(ctx, userID); err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		TokenID:         tokenID,
		AccessExpiresAt: accessExp,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The old tokenId is
// blacklisted (ROTATION) before its session entry is discarded, so there is no
// window where both tokens are valid. A signature-valid token that is
// blacklisted, or whose tokenId is missing from the live list, is denied; the
// missing-from-list case is reuse — a strong signal of token theft — and is
// logged at CRITICAL on its own path while the caller sees the same denial as
// any other invalid token.
func (s *Service) Rotate(ctx context.Context, refreshToken string, meta SessionMeta) (*Pair, error) {
	claims, err := s.signer.ParseRefresh(refreshToken)
	if err != nil {
		s.logAuth(ctx, "", "", meta, "invalid refresh token signature")
		return nil, ErrAuthentication
	}

	blacklisted, err := s.blacklist.Contains(ctx, claims.TokenID, s.now())
	if err != nil {
		return nil, err
	}
	if blacklisted {
		s.logAuth(ctx, claims.UserID, claims.TokenID, meta, "refresh token blacklisted")
		return nil, ErrAuthentication
	}

	rec, err := s.sessions.Get(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != claims.UserID {
		s.logReuse(ctx, claims.UserID, claims.TokenID, meta)
		return nil, ErrReuseDetected
	}

	// Blacklist first: the invariant is that a rotated token is never
	// simultaneously absent from the blacklist and absent from the live list.
	entry := &domain.BlacklistEntry{
		TokenID:       claims.TokenID,
		UserID:        claims.UserID,
		Reason:        domain.ReasonRotation,
		BlacklistedAt: s.now(),
		ExpiresAt:     rec.ExpiresAt,
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		return nil, err
	}
	claimed, err := s.sessions.Delete(ctx, claims.UserID, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost a concurrent rotation race: the entry is gone, treat as reuse.
		s.logReuse(ctx, claims.UserID, claims.TokenID, meta)
		return nil, ErrReuseDetected
	}

	email, role := "", ""
	if s.claims != nil {
		if e, r, err := s.claims.ResolveClaims(ctx, claims.UserID); err == nil {
			email, role = e, r
		}
	}
	pair, err := s.IssuePair(ctx, claims.UserID, email, role, meta)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.TouchLastUsed(ctx, pair.TokenID, s.now())

	if s.auditor != nil {
		s.auditor.LogEvent(ctx, audit.EventParams{
			EventType: "auth",
			Action:    auditdomain.ActionRotate,
			Status:    auditdomain.StatusSuccess,
			Actor:     claims.UserID,
			IP:        meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  auditdomain.AuthenticateMetadata{TokenID: pair.TokenID},
		})
	}
	return pair, nil
}

// RevokeAll blacklists every live tokenId for the user (SECURITY) and clears
// the session list. Used for "logout everywhere" and password reset.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, rec := range list {
		entry := &domain.BlacklistEntry{
			TokenID:       rec.TokenID,
			UserID:        userID,
			Reason:        domain.ReasonSecurity,
			BlacklistedAt: now,
			ExpiresAt:     rec.ExpiresAt,
		}
		if err := s.blacklist.Add(ctx, entry); err != nil {
			return err
		}
	}
	if err := s.sessions.DeleteAllByUser(ctx, userID); err != nil {
		return err
	}
	if s.auditor != nil {
		s.auditor.LogEvent(ctx, audit.EventParams{
			EventType: "auth",
			Action:    auditdomain.ActionLogout,
			Status:    auditdomain.StatusSuccess,
			Severity:  auditdomain.SeverityWarning,
			Actor:     userID,
			Metadata:  auditdomain.GenericMetadata{"revoked_sessions": len(list), "scope": "all"},
		})
	}
	return nil
}

// Revoke blacklists a single session (LOGOUT) identified by its refresh token.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.signer.ParseRefresh(refreshToken)
	if err != nil {
		return ErrAuthentication
	}
	rec, err := s.sessions.Get(ctx, claims.TokenID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	entry := &domain.BlacklistEntry{
		TokenID:       claims.TokenID,
		UserID:        claims.UserID,
		Reason:        domain.ReasonLogout,
		BlacklistedAt: s.now(),
		ExpiresAt:     rec.ExpiresAt,
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		return err
	}
	_, err = s.sessions.Delete(ctx, claims.UserID, claims.TokenID)
	return err
}

// enforceCapacity evicts the oldest session entries beyond the bound, each
// blacklisted (EXPIRED) before removal.
func (s *Service) enforceCapacity(ctx context.Context, userID string) error {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for len(list) > s.maxSessions {
		oldest := list[0]
		entry := &domain.BlacklistEntry{
			TokenID:       oldest.TokenID,
			UserID:        userID,
			Reason:        domain.ReasonExpired,
			BlacklistedAt: s.now(),
			ExpiresAt:     oldest.ExpiresAt,
		}
		if err := s.blacklist.Add(ctx, entry); err != nil {
			return err
		}
		if _, err := s.sessions.Delete(ctx, userID, oldest.TokenID); err != nil {
			return err
		}
		list = list[1:]
	}
	return nil
}

func (s *Service) logAuth(ctx context.Context, userID, tokenID string, meta SessionMeta, reason string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, audit.EventParams{
		EventType: "auth",
		Action:    auditdomain.ActionAuthenticate,
		Status:    auditdomain.StatusFailure,
		Actor:     userID,
		IP:        meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  auditdomain.AuthenticateMetadata{TokenID: tokenID, Reason: reason},
	})
}

// logReuse records the reuse event at CRITICAL. This is the one internal
// distinction from an ordinary authentication failure; the caller still
// receives a uniform denial.
func (s *Service) logReuse(ctx context.Context, userID, tokenID string, meta SessionMeta) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, audit.EventParams{
		EventType: "auth",
		Action:    auditdomain.ActionAuthenticate,
		Status:    auditdomain.StatusFailure,
		Severity:  auditdomain.SeverityCritical,
		Actor:     userID,
		IP:        meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  auditdomain.AuthenticateMetadata{TokenID: tokenID, Reason: "refresh token reuse"},
	})
}

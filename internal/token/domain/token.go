// Package domain defines the refresh-session and blacklist records owned by
// the token service.
package domain

import "time"

// BlacklistReason records why a tokenId was blacklisted.
type BlacklistReason string

const (
	ReasonLogout   BlacklistReason = "LOGOUT"
	ReasonSecurity BlacklistReason = "SECURITY"
	ReasonExpired  BlacklistReason = "EXPIRED"
	ReasonRotation BlacklistReason = "ROTATION"
)

// RefreshTokenRecord is one entry in a user's live session list. The list is
// bounded; the oldest entry is evicted (and blacklisted) when the bound is
// exceeded.
type RefreshTokenRecord struct {
	TokenID    string
	UserID     string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
	UserAgent  string
	IPAddress  string
}

// BlacklistEntry is an append-only revocation record. Entries self-expire:
// ExpiresAt equals the original token's expiry, after which the signature
// alone already rejects the token.
type BlacklistEntry struct {
	TokenID       string
	UserID        string
	Reason        BlacklistReason
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

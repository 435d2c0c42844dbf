package domain

import "time"

// Credential binds a physical RFID card to a member account. The apiKey is
// the shared secret between the card token and the stored record; rotating it
// invalidates every previously issued card token for this card.
type Credential struct {
	CardUID      string
	APIKey       string
	UserID       string
	InSpace      bool
	CheckedInAt  *time.Time
	CheckedOutAt *time.Time
	CreatedAt    time.Time
}

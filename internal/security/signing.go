package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, signed with
// an unexpected algorithm, or otherwise fails verification.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims holds JWT claims for the short-lived stateless access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// RefreshClaims holds JWT claims for the refresh token. TokenID is the
// server-side revocation handle; it is stored in the user's session list and
// cannot be derived from the signature alone.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// CardClaims holds JWT claims for RFID card tokens: api_key and iat, no exp.
// Card tokens are card-lifetime-bound; revocation is by apiKey rotation.
type CardClaims struct {
	jwt.RegisteredClaims
	APIKey string `json:"api_key"`
}

// TokenSigner issues and verifies HMAC-signed tokens with the algorithm pinned
// to HS256. No algorithm negotiation: a token claiming any other alg is
// rejected before signature verification, preventing downgrade attacks.
type TokenSigner struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenSigner returns a TokenSigner signing with key. issuer is set on
// claims and checked on parse.
func NewTokenSigner(key []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenSigner {
	return &TokenSigner{
		key:        key,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SignAccess issues a short-lived access token for the given user.
func (s *TokenSigner) SignAccess(userID, email, role string) (token string, expiresAt time.Time, err error) {
	now := s.now()
	expiresAt = now.Add(s.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Email:  email,
		Role:   role,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	return token, expiresAt, err
}

// SignRefresh issues a refresh token bound to tokenID.
func (s *TokenSigner) SignRefresh(userID, tokenID string) (token string, expiresAt time.Time, err error) {
	now := s.now()
	expiresAt = now.Add(s.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:  userID,
		TokenID: tokenID,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	return token, expiresAt, err
}

// ParseAccess verifies an access token (signature, exp, iss) and returns its claims.
func (s *TokenSigner) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Issuer != s.issuer || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token (signature, exp, iss) and returns its claims.
// A valid signature alone does not make the token usable: the caller must still
// check the blacklist and the live session list.
func (s *TokenSigner) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Issuer != s.issuer || claims.UserID == "" || claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenSigner) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, pinnedHS256(s.key))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// CardSigner issues and verifies RFID card tokens with its own HMAC key,
// independent of session tokens. Same pinned HS256 primitive.
type CardSigner struct {
	key []byte
	now func() time.Time
}

// NewCardSigner returns a CardSigner signing with key.
func NewCardSigner(key []byte) *CardSigner {
	return &CardSigner{key: key, now: func() time.Time { return time.Now().UTC() }}
}

// SignCard issues a card token for apiKey. No expiry: the token lives as long
// as the card's apiKey is valid.
func (s *CardSigner) SignCard(apiKey string) (string, error) {
	claims := CardClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		APIKey: apiKey,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// ParseCard verifies a card token and returns the embedded apiKey.
func (s *CardSigner) ParseCard(tokenString string) (string, error) {
	claims := &CardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, pinnedHS256(s.key))
	if err != nil || !token.Valid || claims.APIKey == "" {
		return "", ErrInvalidToken
	}
	return claims.APIKey, nil
}

// pinnedHS256 returns a keyfunc that accepts exactly HS256 and nothing else.
func pinnedHS256(key []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return key, nil
	}
}

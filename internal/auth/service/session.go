package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/walletgate/walletgate/internal/auth/domain"
)

// DefaultSessionTTL is the lifetime of an issued session token.
const DefaultSessionTTL = 24 * time.Hour

var ErrSessionInvalid = errors.New("auth: session token invalid or expired")

// SessionClaims is the JWT payload of a signed-in session. Subject carries
// the identity id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Address  string `json:"address"`
	ENSName  string `json:"ens_name,omitempty"`
}

// SessionService mints and verifies the HS256 session tokens handed out once
// sign-in completes.
type SessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSessionService(secret []byte, issuer string, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{secret: secret, issuer: issuer, ttl: ttl}
}

// Mint issues a session token for a signed-in identity.
func (s *SessionService) Mint(identity domain.Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: identity.Username,
		Address:  identity.Address,
		ENSName:  identity.ENSName,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates a session token.
func (s *SessionService) Verify(token string) (SessionClaims, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return SessionClaims{}, ErrSessionInvalid
	}
	return claims, nil
}

// IdentityID extracts the numeric identity id from the subject claim.
func (c SessionClaims) IdentityID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	return id, nil
}

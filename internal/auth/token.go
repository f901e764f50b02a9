package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the signed session token
const CookieName = "avtotest_session"

var ErrInvalidToken = errors.New("invalid session token")

// credentialBytes is how much of the credential MAC a token carries
const credentialBytes = 12

// SessionClaims identify a user and the browser session the login created.
// The browser session id travels in the standard jti claim. Credential is
// derived from the password hash at issue time, so changing the password
// invalidates every token issued before.
type SessionClaims struct {
	UserID     uint   `json:"user_id"`
	Credential string `json:"crd"`
	jwt.RegisteredClaims
}

// BrowserSession returns the id progress entries are keyed under
func (c *SessionClaims) BrowserSession() string {
	return c.ID
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for userID bound to its current password hash. An
// empty browserSession mints a new one.
func (m *TokenManager) Issue(userID uint, passwordHash, browserSession string) (string, *SessionClaims, error) {
	if browserSession == "" {
		browserSession = uuid.New().String()
	}

	now := time.Now()
	claims := &SessionClaims{
		UserID:     userID,
		Credential: m.credential(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        browserSession,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

func (m *TokenManager) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Current reports whether claims were issued for passwordHash
func (m *TokenManager) Current(claims *SessionClaims, passwordHash string) bool {
	return hmac.Equal([]byte(claims.Credential), []byte(m.credential(passwordHash)))
}

func (m *TokenManager) credential(passwordHash string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:credentialBytes])
}

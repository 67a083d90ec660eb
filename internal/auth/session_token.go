package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie holding the signed session token.
const SessionCookieName = "pluto_session"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokens signs and verifies session cookie tokens (HS256).
// The token only points at a stored session; the session row stays the
// source of truth for expiry and active organization.
type SessionTokens struct {
	secret []byte
	issuer string
	secure bool
}

// NewSessionTokens creates a token signer. The secret must be at least 32 bytes.
func NewSessionTokens(secret []byte, issuer string, secureCookies bool) (*SessionTokens, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	return &SessionTokens{secret: secret, issuer: issuer, secure: secureCookies}, nil
}

// Issue signs a token for the session.
func (t *SessionTokens) Issue(sessionID uuid.UUID, userID string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry and returns the session id
// and user id.
func (t *SessionTokens) Verify(token string) (uuid.UUID, string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", ErrExpiredSession
		}
		return uuid.Nil, "", fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil || claims.Subject == "" {
		return uuid.Nil, "", ErrInvalidSession
	}

	return sessionID, claims.Subject, nil
}

// SetCookie writes the session cookie.
func (t *SessionTokens) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

// ClearCookie removes the session cookie.
func (t *SessionTokens) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Secure reports whether cookies are marked Secure.
func (t *SessionTokens) Secure() bool {
	return t.secure
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

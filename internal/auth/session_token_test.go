package auth

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSessionTokens(t *testing.T) {
	tokens, err := NewSessionTokens(testSecret, "http://localhost:3000", false)
	require.NoError(t, err)

	sessionID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		token, err := tokens.Issue(sessionID, "u1", time.Now().Add(time.Hour))
		require.NoError(t, err)

		gotSession, gotUser, err := tokens.Verify(token)
		require.NoError(t, err)
		require.Equal(t, sessionID, gotSession)
		require.Equal(t, "u1", gotUser)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := tokens.Issue(sessionID, "u1", time.Now().Add(-time.Minute))
		require.NoError(t, err)

		_, _, err = tokens.Verify(token)
		require.ErrorIs(t, err, ErrExpiredSession)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewSessionTokens([]byte(strings.Repeat("x", 32)), "http://localhost:3000", false)
		require.NoError(t, err)

		token, err := other.Issue(sessionID, "u1", time.Now().Add(time.Hour))
		require.NoError(t, err)

		_, _, err = tokens.Verify(token)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewSessionTokens(testSecret, "https://evil.example", false)
		require.NoError(t, err)

		token, err := other.Issue(sessionID, "u1", time.Now().Add(time.Hour))
		require.NoError(t, err)

		_, _, err = tokens.Verify(token)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := tokens.Verify("not-a-token")
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("short secret rejected", func(t *testing.T) {
		_, err := NewSessionTokens([]byte("short"), "x", false)
		require.Error(t, err)
	})
}

func TestSessionTokens_Cookies(t *testing.T) {
	tokens, err := NewSessionTokens(testSecret, "http://localhost:3000", true)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tokens.SetCookie(rec, "tok", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.Equal(t, "tok", cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
	require.True(t, cookies[0].Secure)
	require.Equal(t, "/", cookies[0].Path)

	rec = httptest.NewRecorder()
	tokens.ClearCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	require.Equal(t, -1, cleared[0].MaxAge)
}

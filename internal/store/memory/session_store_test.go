package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/stretchr/testify/require"
)

func newSession(ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		SessionID:  uuid.New(),
		UserID:     "u1",
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
	}
}

func TestSessionStore(t *testing.T) {
	t.Run("create get and set active org", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		session := newSession(time.Hour)

		require.NoError(t, st.Create(ctx, session))

		got, err := st.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)
		require.Empty(t, got.ActiveOrgID)

		require.NoError(t, st.SetActiveOrganization(ctx, session.SessionID, "org1"))

		got, err = st.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, "org1", got.ActiveOrgID)
	})

	t.Run("expired session", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		session := newSession(-time.Minute)

		require.NoError(t, st.Create(ctx, session))

		_, err := st.Get(ctx, session.SessionID)
		require.ErrorIs(t, err, store.ErrSessionExpired)

		n, err := st.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = st.Get(ctx, session.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		session := newSession(time.Hour)

		require.NoError(t, st.Create(ctx, session))
		require.NoError(t, st.Delete(ctx, session.SessionID))
		require.ErrorIs(t, st.Delete(ctx, session.SessionID), store.ErrSessionNotFound)
		require.ErrorIs(t, st.UpdateLastUsed(ctx, session.SessionID), store.ErrSessionNotFound)
		require.ErrorIs(t, st.SetActiveOrganization(ctx, session.SessionID, "org1"), store.ErrSessionNotFound)
	})
}

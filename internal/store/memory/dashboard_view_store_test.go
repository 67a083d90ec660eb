package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/stretchr/testify/require"
)

func TestDashboardViewStore_DefaultIsExclusive(t *testing.T) {
	st := NewDashboardViewStore()
	ctx := context.Background()

	first := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "loss", IsDefault: true, Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, first))

	second := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "accuracy", IsDefault: true, Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, second))

	views, err := st.ListByProject(ctx, "org1", 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, second.ID, views[0].ID)
	require.True(t, views[0].IsDefault)
	require.False(t, views[1].IsDefault)

	first.IsDefault = true
	require.NoError(t, st.Update(ctx, first))

	views, err = st.ListByProject(ctx, "org1", 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, views[0].ID)
	require.False(t, views[1].IsDefault)
}

func TestDashboardViewStore_ClearingDefaultTouchesUpdatedAt(t *testing.T) {
	st := NewDashboardViewStore()
	ctx := context.Background()

	first := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "loss", IsDefault: true, Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, first))
	other := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "lr", Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, other))

	time.Sleep(5 * time.Millisecond)

	second := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "accuracy", IsDefault: true, Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, second))

	cleared, err := st.Get(ctx, "org1", first.ID)
	require.NoError(t, err)
	require.False(t, cleared.IsDefault)
	require.True(t, cleared.UpdatedAt.After(first.UpdatedAt))

	untouched, err := st.Get(ctx, "org1", other.ID)
	require.NoError(t, err)
	require.Equal(t, other.UpdatedAt, untouched.UpdatedAt)
}

func TestDashboardViewStore_Scoping(t *testing.T) {
	st := NewDashboardViewStore()
	ctx := context.Background()

	view := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "loss", Config: json.RawMessage(`{"version":1}`)}
	require.NoError(t, st.Create(ctx, view))

	_, err := st.Get(ctx, "org2", view.ID)
	require.ErrorIs(t, err, store.ErrViewNotFound)

	require.ErrorIs(t, st.Delete(ctx, "org2", view.ID), store.ErrViewNotFound)

	dup := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "loss"}
	require.ErrorIs(t, st.Create(ctx, dup), store.ErrViewAlreadyExists)

	require.NoError(t, st.Delete(ctx, "org1", view.ID))
	_, err = st.Get(ctx, "org1", view.ID)
	require.ErrorIs(t, err, store.ErrViewNotFound)
}

func TestDashboardViewStore_ConfigIsCopied(t *testing.T) {
	st := NewDashboardViewStore()
	ctx := context.Background()

	config := json.RawMessage(`{"version":1}`)
	view := &models.DashboardView{OrgID: "org1", ProjectID: 1, Name: "loss", Config: config}
	require.NoError(t, st.Create(ctx, view))

	config[1] = 'X'

	got, err := st.Get(ctx, "org1", view.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1}`, string(got.Config))
}

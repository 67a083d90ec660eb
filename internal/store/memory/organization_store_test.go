package memory

import (
	"context"
	"testing"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/stretchr/testify/require"
)

func TestOrganizationStore_Create(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		st := NewOrganizationStore()
		ctx := context.Background()

		err := st.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"})
		require.NoError(t, err)

		org, err := st.Get(ctx, "org1")
		require.NoError(t, err)
		require.Equal(t, "acme", org.Slug)

		bySlug, err := st.GetBySlug(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, "org1", bySlug.ID)
	})

	t.Run("duplicate slug rejected", func(t *testing.T) {
		st := NewOrganizationStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
		err := st.Create(ctx, &models.Organization{ID: "org2", Name: "Acme 2", Slug: "acme"})
		require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)
	})

	t.Run("missing organization", func(t *testing.T) {
		st := NewOrganizationStore()

		_, err := st.Get(context.Background(), "nope")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)

		_, err = st.GetBySlug(context.Background(), "nope")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("returned copies are isolated", func(t *testing.T) {
		st := NewOrganizationStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))

		org, err := st.Get(ctx, "org1")
		require.NoError(t, err)
		org.Name = "changed"

		again, err := st.Get(ctx, "org1")
		require.NoError(t, err)
		require.Equal(t, "Acme", again.Name)
	})
}

func TestOrganizationStore_Members(t *testing.T) {
	st := NewOrganizationStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, &models.Organization{ID: "org2", Name: "Zeta", Slug: "zeta"}))
	require.NoError(t, st.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))

	require.NoError(t, st.AddMember(ctx, &models.Member{OrgID: "org1", UserID: "u1", Role: models.RoleOwner}))
	require.NoError(t, st.AddMember(ctx, &models.Member{OrgID: "org2", UserID: "u1", Role: models.RoleMember}))

	err := st.AddMember(ctx, &models.Member{OrgID: "missing", UserID: "u1", Role: models.RoleMember})
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	memberships, err := st.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	require.Equal(t, "Acme", memberships[0].Organization.Name)
	require.Equal(t, models.RoleOwner, memberships[0].Role)
	require.Equal(t, "Zeta", memberships[1].Organization.Name)

	member, err := st.GetMember(ctx, "org1", "u1")
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, member.Role)
	require.False(t, member.CreatedAt.IsZero())

	_, err = st.GetMember(ctx, "org1", "u2")
	require.ErrorIs(t, err, store.ErrMemberNotFound)

	none, err := st.ListForUser(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, none)
}

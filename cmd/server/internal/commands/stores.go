package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	memorystore "github.com/mlop-ai/pluto/internal/store/memory"
	postgresstore "github.com/mlop-ai/pluto/internal/store/postgres"
	"github.com/rs/zerolog/log"
)

// storeSet bundles the relational stores and the optional cache backend they share.
type storeSet struct {
	users         store.UserStore
	organizations store.OrganizationStore
	sessions      store.SessionStore
	runs          store.RunStore
	views         store.DashboardViewStore
	triggers      store.RunTriggerStore

	cacheBackend cache.Backend // nil unless the postgres cache backend is selected
	db           *postgresstore.DB
}

func (c *ServerCmd) openStores(ctx context.Context) (*storeSet, error) {
	if c.StoreType != "postgres" {
		log.Info().Msg("Using in-memory stores")
		return &storeSet{
			users:         memorystore.NewUserStore(),
			organizations: memorystore.NewOrganizationStore(),
			sessions:      memorystore.NewSessionStore(),
			runs:          memorystore.NewRunStore(),
			views:         memorystore.NewDashboardViewStore(),
			triggers:      memorystore.NewRunTriggerStore(),
		}, nil
	}

	db, err := postgresstore.Open(ctx, &postgresstore.Config{
		Pool: postgresstore.PoolConfig{
			ConnString:      c.Postgres.ConnString,
			MaxConns:        c.Postgres.MaxConns,
			MinConns:        c.Postgres.MinConns,
			MaxConnLifetime: c.Postgres.MaxConnLifetime,
			MaxConnIdleTime: c.Postgres.MaxConnIdleTime,
		},
		AutoMigrate: c.Postgres.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres stores: %w", err)
	}
	db.Start()

	s := &storeSet{
		users:         db.Users,
		organizations: db.Organizations,
		sessions:      db.Sessions,
		runs:          db.Runs,
		views:         db.DashboardViews,
		triggers:      db.RunTriggers,
		db:            db,
	}
	if c.Cache.Backend == "postgres" {
		s.cacheBackend = db.Cache
	}

	log.Info().Str("cache_backend", c.Cache.Backend).Msg("Using PostgreSQL stores with shared connection pool")
	return s, nil
}

func (s *storeSet) close() {
	if s.db != nil {
		s.db.Stop()
	}
}

const demoUserID = "usr_demo"

// ensureDemo returns the demo organization, creating it and the demo user on
// first start.
func ensureDemo(ctx context.Context, s *storeSet, slug string) (*models.Organization, error) {
	org, err := s.organizations.GetBySlug(ctx, slug)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, fmt.Errorf("failed to load demo organization: %w", err)
	}

	if err := s.users.Create(ctx, &models.User{ID: demoUserID, Email: "demo@localhost", Name: "Demo"}); err != nil &&
		!errors.Is(err, store.ErrUserAlreadyExists) {
		return nil, fmt.Errorf("failed to create demo user: %w", err)
	}

	org = &models.Organization{ID: "org_demo", Name: "Demo", Slug: slug}
	if err := s.organizations.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create demo organization: %w", err)
	}
	if err := s.organizations.AddMember(ctx, &models.Member{OrgID: org.ID, UserID: demoUserID, Role: models.RoleMember}); err != nil {
		return nil, fmt.Errorf("failed to add demo member: %w", err)
	}

	log.Info().Str("slug", slug).Msg("Created demo organization")
	return org, nil
}

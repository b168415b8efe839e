// Package tenantdbtest opens throwaway sqlite stores for tests.
package tenantdbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/config"
	"obligation-service/pkg/database"
)

// Open returns a migrated store backed by a sqlite file in t.TempDir().
// The pool holds a single connection so transactions serialize the way row
// locks would on a server database.
func Open(t testing.TB) *tenantdb.Store {
	t.Helper()

	db, err := database.Open(&config.DBConfig{
		Driver:          "sqlite",
		SQLitePath:      filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		LogLevelName:    "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, model.All()...))

	store, err := tenantdb.New(db, model.All()...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store
}

// SeedTenant inserts an active tenant and returns its id.
func SeedTenant(t testing.TB, store *tenantdb.Store, name string) string {
	t.Helper()
	tenant := &model.Tenant{Name: name}
	require.NoError(t, store.Conn(context.Background()).Create(tenant).Error)
	return tenant.ID
}

// SeedParty inserts a party into tenantID and returns it.
func SeedParty(t testing.TB, store *tenantdb.Store, tenantID, name string) *model.Party {
	t.Helper()
	party := &model.Party{Name: name, Email: name + "@example.com"}
	ctx := reqctx.WithTenant(context.Background(), tenantID)
	require.NoError(t, store.Conn(ctx).Create(party).Error)
	return party
}

// Privileged returns a context for a privileged actor of tenantID.
func Privileged(tenantID, actorID string) context.Context {
	return reqctx.WithIdentity(context.Background(), reqctx.Identity{
		ActorID:  actorID,
		TenantID: tenantID,
		Role:     reqctx.RolePrivileged,
	})
}

// Restricted returns a context for a restricted actor bound to partyID.
func Restricted(tenantID, actorID, partyID string) context.Context {
	return reqctx.WithIdentity(context.Background(), reqctx.Identity{
		ActorID:  actorID,
		TenantID: tenantID,
		Role:     reqctx.RoleRestricted,
		PartyID:  partyID,
	})
}

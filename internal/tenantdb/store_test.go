package tenantdb_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"obligation-service/internal/apperr"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/internal/tenantdb/tenantdbtest"
)

func newObligation(partyID, title string) *model.Obligation {
	return &model.Obligation{
		PartyID:  partyID,
		Title:    title,
		Category: model.CategoryPayment,
		DueDate:  time.Now().Add(48 * time.Hour),
		Status:   model.StatusPending,
	}
}

func TestQueriesWithoutScopeFailClosed(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantdbtest.SeedParty(t, store, tenantA, "acme")

	ctx := context.Background()

	var parties []model.Party
	err := store.Conn(ctx).Find(&parties).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
	assert.Empty(t, parties)

	var count int64
	err = store.Conn(ctx).Model(&model.Party{}).Count(&count).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	err = store.Conn(ctx).Create(&model.Party{Name: "nope"}).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	err = store.Conn(ctx).Model(&model.Party{}).Where("name = ?", "acme").Update("name", "x").Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	err = store.Conn(ctx).Where("name = ?", "acme").Delete(&model.Party{}).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	err = store.Conn(ctx).Table("parties").Count(&count).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	// The row is untouched.
	scoped := reqctx.WithTenant(ctx, tenantA)
	require.NoError(t, store.Conn(scoped).Model(&model.Party{}).Where("name = ?", "acme").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUnscopedModelsPassThrough(t *testing.T) {
	store := tenantdbtest.Open(t)

	tenant := &model.Tenant{Name: "global"}
	require.NoError(t, store.Conn(context.Background()).Create(tenant).Error)

	got, err := tenantdb.Get[model.Tenant](store.Conn(context.Background()), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "global", got.Name)
	assert.Equal(t, model.PlanFree, got.PlanTier)
}

func TestCreateInjectsScopeTenant(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")

	ctx := reqctx.WithTenant(context.Background(), tenantA)
	party := &model.Party{TenantID: tenantB, Name: "spoofed"}
	require.NoError(t, store.Conn(ctx).Create(party).Error)
	assert.Equal(t, tenantA, party.TenantID)

	batch := []model.Party{{Name: "one"}, {Name: "two", TenantID: tenantB}}
	require.NoError(t, store.Conn(ctx).Create(&batch).Error)
	for _, p := range batch {
		assert.Equal(t, tenantA, p.TenantID)
	}
}

func TestReadsAreIsolated(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	partyA := tenantdbtest.SeedParty(t, store, tenantA, "alpha")
	tenantdbtest.SeedParty(t, store, tenantB, "beta")

	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	_, err := tenantdb.Get[model.Party](store.Conn(ctxB), partyA.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	var parties []model.Party
	require.NoError(t, store.Conn(ctxB).Find(&parties).Error)
	require.Len(t, parties, 1)
	assert.Equal(t, "beta", parties[0].Name)

	exists, err := tenantdb.Exists[model.Party](store.Conn(ctxB), partyA.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWritesCannotReachOtherTenants(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	partyA := tenantdbtest.SeedParty(t, store, tenantA, "alpha")

	ctxA := reqctx.WithTenant(context.Background(), tenantA)
	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	err := tenantdb.Update[model.Party](store.Conn(ctxB), partyA.ID, map[string]interface{}{"name": "hijacked"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	res := store.Conn(ctxB).Delete(&model.Party{}, "id = ?", partyA.ID)
	require.NoError(t, res.Error)
	assert.Zero(t, res.RowsAffected)

	got, err := tenantdb.Get[model.Party](store.Conn(ctxA), partyA.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
}

func TestTenantIDIsImmutable(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	partyA := tenantdbtest.SeedParty(t, store, tenantA, "alpha")

	ctxA := reqctx.WithTenant(context.Background(), tenantA)

	err := tenantdb.Update[model.Party](store.Conn(ctxA), partyA.ID, map[string]interface{}{"tenant_id": tenantB})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	partyA.TenantID = tenantB
	err = store.Conn(ctxA).Save(partyA).Error
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := tenantdb.Get[model.Party](store.Conn(ctxA), partyA.ID)
	require.NoError(t, err)
	assert.Equal(t, tenantA, got.TenantID)
}

func TestTxRollsBackOnError(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	party := tenantdbtest.SeedParty(t, store, tenantA, "alpha")
	ctx := reqctx.WithTenant(context.Background(), tenantA)

	err := store.Tx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(newObligation(party.ID, "rolled back")).Error)
		return apperr.Validation("abort")
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	var count int64
	require.NoError(t, store.Conn(ctx).Model(&model.Obligation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTenantRequiresID(t *testing.T) {
	store := tenantdbtest.Open(t)
	called := false
	err := store.WithTenant(context.Background(), "", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
	assert.False(t, called)
}

func TestConcurrentTenantsDoNotCrossTalk(t *testing.T) {
	store := tenantdbtest.Open(t)

	const tenants = 6
	ids := make([]string, tenants)
	for i := range ids {
		ids[i] = tenantdbtest.SeedTenant(t, store, fmt.Sprintf("t%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, tenants*10)
	for i, tenantID := range ids {
		wg.Add(1)
		go func(i int, tenantID string) {
			defer wg.Done()
			err := store.WithTenant(context.Background(), tenantID, func(ctx context.Context) error {
				for j := 0; j < 10; j++ {
					p := &model.Party{Name: fmt.Sprintf("t%d-p%d", i, j)}
					if err := tenantdb.Create(store.Conn(ctx), p); err != nil {
						return err
					}
				}
				var parties []model.Party
				if err := store.Conn(ctx).Find(&parties).Error; err != nil {
					return err
				}
				for _, p := range parties {
					if p.TenantID != tenantID {
						return fmt.Errorf("tenant %s saw party of %s", tenantID, p.TenantID)
					}
				}
				return nil
			})
			if err != nil {
				errs <- err
			}
		}(i, tenantID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for _, tenantID := range ids {
		var count int64
		ctx := reqctx.WithTenant(context.Background(), tenantID)
		require.NoError(t, store.Conn(ctx).Model(&model.Party{}).Count(&count).Error)
		assert.Equal(t, int64(10), count)
	}
}

func TestRawSQLOnTenantTablesIsRefused(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	tenantdbtest.SeedParty(t, store, tenantA, "alpha")

	ctxA := reqctx.WithTenant(context.Background(), tenantA)
	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	var names []string
	err := store.Conn(ctxB).Raw("SELECT name FROM parties").Scan(&names).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
	assert.Empty(t, names)

	var parties []model.Party
	err = store.Conn(ctxB).Raw(`SELECT * FROM "parties"`).Find(&parties).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
	assert.Empty(t, parties)

	res := store.Conn(context.Background()).Exec("UPDATE parties SET name = 'pwned'")
	assert.ErrorIs(t, res.Error, apperr.ErrScopeRequired)
	assert.Zero(t, res.RowsAffected)

	res = store.Conn(ctxA).Exec("DELETE FROM parties")
	assert.ErrorIs(t, res.Error, apperr.ErrScopeRequired)
	assert.Zero(t, res.RowsAffected)

	var got model.Party
	require.NoError(t, store.Conn(ctxA).Take(&got).Error)
	assert.Equal(t, "alpha", got.Name)
}

func TestRawSQLOnSharedTablesPassesThrough(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantdbtest.SeedTenant(t, store, "a")
	tenantdbtest.SeedTenant(t, store, "b")

	var count int64
	require.NoError(t, store.Conn(context.Background()).Raw("SELECT count(*) FROM tenants").Scan(&count).Error)
	assert.Equal(t, int64(2), count)

	// Column names that merely contain a tenant table name do not count.
	var one int
	require.NoError(t, store.Conn(context.Background()).Raw("SELECT 1 AS counterparties").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestJoinsOntoTenantTablesAreScoped(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	tenantdbtest.SeedParty(t, store, tenantA, "alpha")
	tenantdbtest.SeedParty(t, store, tenantB, "bravo")

	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	var names []string
	err := store.Conn(ctxB).Model(&model.Tenant{}).
		Select("parties.name").
		Joins("JOIN parties ON parties.tenant_id <> tenants.id OR parties.tenant_id = tenants.id").
		Scan(&names).Error
	require.NoError(t, err)
	assert.NotEmpty(t, names)
	for _, name := range names {
		assert.Equal(t, "bravo", name)
	}

	names = nil
	err = store.Conn(ctxB).Model(&model.Tenant{}).
		Select("p.name").
		Joins("INNER JOIN parties AS p ON 1 = 1").
		Scan(&names).Error
	require.NoError(t, err)
	assert.NotContains(t, names, "alpha")

	err = store.Conn(context.Background()).Model(&model.Tenant{}).
		Select("parties.name").
		Joins("JOIN parties ON parties.tenant_id = tenants.id").
		Scan(&names).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	err = store.Conn(ctxB).Model(&model.Tenant{}).
		Joins("JOIN (SELECT tenant_id FROM parties) x ON x.tenant_id = tenants.id").
		Find(&[]model.Tenant{}).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
}

func TestAssociationJoinsStayInScope(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	partyA := tenantdbtest.SeedParty(t, store, tenantA, "alpha")
	partyB := tenantdbtest.SeedParty(t, store, tenantB, "bravo")

	ctxA := reqctx.WithTenant(context.Background(), tenantA)
	ctxB := reqctx.WithTenant(context.Background(), tenantB)
	require.NoError(t, store.Conn(ctxA).Create(newObligation(partyA.ID, "a-1")).Error)
	require.NoError(t, store.Conn(ctxB).Create(newObligation(partyB.ID, "b-1")).Error)

	var rows []model.Obligation
	require.NoError(t, store.Conn(ctxB).Joins("Party").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "b-1", rows[0].Title)
	require.NotNil(t, rows[0].Party)
	assert.Equal(t, "bravo", rows[0].Party.Name)
}

func TestAliasedTenantTablesAreScoped(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	tenantdbtest.SeedParty(t, store, tenantA, "alpha")
	tenantdbtest.SeedParty(t, store, tenantB, "bravo")

	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	var names []string
	require.NoError(t, store.Conn(ctxB).Table("parties p").Select("p.name").Scan(&names).Error)
	assert.Equal(t, []string{"bravo"}, names)

	var count int64
	err := store.Conn(context.Background()).Table("parties AS p").Count(&count).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
}

func TestSubqueriesOnTenantTablesAreRefused(t *testing.T) {
	store := tenantdbtest.Open(t)
	tenantA := tenantdbtest.SeedTenant(t, store, "a")
	tenantB := tenantdbtest.SeedTenant(t, store, "b")
	tenantdbtest.SeedParty(t, store, tenantA, "alpha")

	ctxB := reqctx.WithTenant(context.Background(), tenantB)

	var tenants []model.Tenant
	err := store.Conn(ctxB).
		Where("id IN (SELECT tenant_id FROM parties WHERE name = ?)", "alpha").
		Find(&tenants).Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)
	assert.Empty(t, tenants)

	err = store.Conn(ctxB).Model(&model.Tenant{}).
		Where("EXISTS (SELECT 1 FROM parties WHERE parties.tenant_id = tenants.id)").
		Update("name", "x").Error
	assert.ErrorIs(t, err, apperr.ErrScopeRequired)

	// Subqueries built from the model API go through the guard themselves.
	err = store.Conn(ctxB).
		Where("id IN (?)", store.Conn(ctxB).Model(&model.Party{}).Select("tenant_id")).
		Find(&tenants).Error
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

func TestManager_BootstrapAndInventory(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	telemetry := newRecordingTelemetry()

	config := DefaultConfig()
	config.Dialect = DialectSQLite
	config.BcryptCost = bcrypt.MinCost
	manager := NewManager(db, &staticRoutes{endpoints: testEndpoints()}, telemetry, newTestLogger(), config)

	require.NoError(t, manager.Initialize(ctx))
	summary, err := manager.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testEndpoints()), summary.Created)

	count, err := manager.GetStore().CountRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "default seed applied")

	summary, err = manager.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testEndpoints()), summary.Unchanged)

	inv, err := manager.RefreshInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.DefaultRoles)
	assert.Equal(t, []int{len(testEndpoints()), 0, 3, inv.Grants}, telemetry.inventory)
	assert.Greater(t, inv.Grants, 0)
}

func TestManager_BootstrapWithoutSeed(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig()
	config.Dialect = DialectSQLite
	config.SeedEnabled = false
	manager := NewManager(setupTestDB(t), &staticRoutes{endpoints: testEndpoints()}, nil, newTestLogger(), config)

	_, err := manager.Bootstrap(ctx)
	require.NoError(t, err)

	count, err := manager.GetStore().CountRoles(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgres_ConcurrentBootAndGrants(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	config := DefaultConfig()
	config.BcryptCost = bcrypt.MinCost

	// Two instances booting against the same database
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		manager := NewManager(db, &staticRoutes{endpoints: testEndpoints()}, nil, newTestLogger(), config)
		g.Go(func() error {
			if err := manager.Initialize(ctx); err != nil {
				return err
			}
			_, err := manager.Bootstrap(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	store := NewStore(db)
	perms, err := store.ListPermissions(ctx, true)
	require.NoError(t, err)
	assert.Len(t, perms, len(testEndpoints()), "no duplicate permissions across instances")

	count, err := store.CountRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "seeded exactly once")

	err = store.CreateRole(ctx, &Role{Name: "Customer", IsDefault: true})
	assert.Error(t, err, "a second active default role is rejected")

	roles, err := store.ListRolesWithPermissions(ctx)
	require.NoError(t, err)
	var seller Role
	for _, r := range roles {
		if r.Name == "Seller" {
			seller = r
		}
	}
	require.NotZero(t, seller.ID)
	permID := mustPermissionID(t, store, "DELETE", "/api/products/{id}")

	// Concurrent attaches of one pair never error and never duplicate
	var wg sync.WaitGroup
	var mu sync.Mutex
	changed := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grant, err := store.AttachPermission(ctx, seller.ID, permID)
			assert.NoError(t, err)
			if err == nil && grant.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changed)

	var rows int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM role_permissions WHERE role_id = $1 AND permission_id = $2", seller.ID, permID,
	).Scan(&rows))
	assert.Equal(t, 1, rows)

	// Retire and rediscover: the grant is gone
	_, _, err = store.RetirePermission(ctx, permID)
	require.NoError(t, err)
	_, outcome, err := store.EnsurePermission(ctx, Endpoint{Method: "DELETE", Path: "/api/products/{id}"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResurrected, outcome)

	var users []int64
	r, err := db.QueryContext(ctx, "SELECT id FROM users WHERE role_id = $1", seller.ID)
	require.NoError(t, err)
	for r.Next() {
		var id int64
		require.NoError(t, r.Scan(&id))
		users = append(users, id)
	}
	require.NoError(t, r.Close())
	require.NotEmpty(t, users)

	grants, err := store.LoadGrants(ctx, users[0])
	require.NoError(t, err)
	assert.False(t, grants.Permissions.Contains(NewRouteKey("DELETE", "/api/products/{id}")))
	assert.True(t, grants.Permissions.Contains(NewRouteKey("PUT", "/api/products/{id}")))
}

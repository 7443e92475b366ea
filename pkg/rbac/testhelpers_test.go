package rbac

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestLogger discards output
func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestDB returns a migrated in-memory SQLite database
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// One connection keeps every statement on the same in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(context.Background(), db, DialectSQLite, newTestLogger()))

	return db
}

// setupPostgres starts a disposable PostgreSQL container, skipping when unavailable
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping PostgreSQL integration test")
	}
	provider.Close()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("shopfront_test"),
		postgres.WithUsername("shopfront"),
		postgres.WithPassword("shopfront_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	return db
}

// staticRoutes is a fixed route source
type staticRoutes struct {
	endpoints []Endpoint
	err       error
}

func (s *staticRoutes) Enumerate() ([]Endpoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	SortEndpoints(out)
	return out, nil
}

func (s *staticRoutes) Handle(ep Endpoint, h http.Handler) {
	s.endpoints = append(s.endpoints, ep)
}

// Resolve matches the request path literally, so only templates without placeholders resolve
func (s *staticRoutes) Resolve(r *http.Request) (Endpoint, bool) {
	key := NewRouteKey(r.Method, r.URL.Path)
	for _, ep := range s.endpoints {
		if ep.Key() == key {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// testEndpoints is a slice of the storefront surface
func testEndpoints() []Endpoint {
	return []Endpoint{
		{Method: "GET", Path: "/api/products", Name: "products.list", Controller: "Products", Action: "GetProducts", Public: true},
		{Method: "GET", Path: "/api/products/{id}", Name: "products.get", Controller: "Products", Action: "GetProduct", Public: true},
		{Method: "POST", Path: "/api/products", Name: "products.create", Controller: "Products", Action: "CreateProduct"},
		{Method: "PUT", Path: "/api/products/{id}", Name: "products.update", Controller: "Products", Action: "UpdateProduct"},
		{Method: "DELETE", Path: "/api/products/{id}", Name: "products.delete", Controller: "Products", Action: "DeleteProduct"},
		{Method: "PUT", Path: "/api/orders/{id}/status", Name: "orders.updateStatus", Controller: "Orders", Action: "UpdateOrderStatus"},
		{Method: "GET", Path: "/api/users/me", Name: "users.me", Controller: "User", Action: "GetMe"},
	}
}

// mustPermissionID returns the id of a registered permission
func mustPermissionID(t *testing.T, store *Store, method, path string) int64 {
	t.Helper()

	perms, err := store.ListPermissions(context.Background(), true)
	require.NoError(t, err)
	key := NewRouteKey(method, path)
	for _, p := range perms {
		if p.Key() == key {
			return p.ID
		}
	}
	t.Fatalf("permission %s not registered", key)
	return 0
}

// createTestUser creates a role and a user holding it
func createTestUser(t *testing.T, store *Store, role *Role) *User {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.CreateRole(ctx, role))
	user := &User{Name: role.Name + " user", Email: role.Name + "@example.com", PasswordHash: "x", RoleID: role.ID}
	require.NoError(t, store.CreateUser(ctx, user))
	return user
}

// nowForMock is a fixed timestamp for sqlmock rows
var nowForMock = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

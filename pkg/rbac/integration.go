package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds RBAC configuration
type Config struct {
	// Dialect selects the migration DDL
	Dialect Dialect

	// QueryTimeout bounds each grant lookup on the authorization path
	QueryTimeout time.Duration

	// SeedEnabled seeds roles and accounts when none exist after registration
	SeedEnabled bool

	// Seed overrides the embedded seed document
	Seed *SeedDocument

	// BcryptCost overrides the cost used to hash seeded passwords
	BcryptCost int
}

// DefaultConfig returns default RBAC configuration
func DefaultConfig() Config {
	return Config{
		Dialect:      DialectPostgres,
		QueryTimeout: 2 * time.Second,
		SeedEnabled:  true,
	}
}

// RouteTable is the routing layer as seen by RBAC
type RouteTable interface {
	RouteSource
	EndpointResolver
	RouteRegistrar
}

// Telemetry receives every RBAC metric. *observability.Metrics satisfies it.
type Telemetry interface {
	DecisionRecorder
	MutationRecorder
	RegistrationRecorder
	SetInventory(activePermissions, deletedPermissions, roles, grants int)
}

// Manager manages all RBAC components
type Manager struct {
	db          *sql.DB
	store       *Store
	authorizer  *Authorizer
	interceptor *Interceptor
	handlers    *Handlers
	registrar   *Registrar
	seeder      *Seeder
	telemetry   Telemetry
	logger      logrus.FieldLogger
	config      Config
}

// NewManager creates a new RBAC manager
func NewManager(db *sql.DB, routes RouteTable, telemetry Telemetry, logger logrus.FieldLogger, config Config) *Manager {
	store := NewStore(db)
	authorizer := NewAuthorizer(store, telemetry, logger, config.QueryTimeout)

	seeder := NewSeeder(store, logger)
	if config.BcryptCost > 0 {
		seeder.WithBcryptCost(config.BcryptCost)
	}

	return &Manager{
		db:          db,
		store:       store,
		authorizer:  authorizer,
		interceptor: NewInterceptor(authorizer, routes, logger),
		handlers:    NewHandlers(store, routes, telemetry, logger),
		registrar:   NewRegistrar(routes, store, telemetry, logger),
		seeder:      seeder,
		telemetry:   telemetry,
		logger:      logger,
		config:      config,
	}
}

// Initialize runs the schema migrations
func (m *Manager) Initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, m.db, m.config.Dialect, m.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Bootstrap registers discovered routes and seeds an empty store. It must finish before traffic is served.
func (m *Manager) Bootstrap(ctx context.Context) (*RegistrationSummary, error) {
	summary, err := m.registrar.Register(ctx)
	if err != nil {
		return nil, err
	}

	if !m.config.SeedEnabled {
		return summary, nil
	}

	doc := m.config.Seed
	if doc == nil {
		if doc, err = DefaultSeed(); err != nil {
			return nil, err
		}
	}
	if _, err := m.seeder.SeedIfEmpty(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}
	return summary, nil
}

// RegisterRoutes registers the administration API
func (m *Manager) RegisterRoutes(router RouteRegistrar) {
	m.handlers.RegisterRoutes(router)
}

// WithMutationMiddleware wraps the administration POST endpoints. Call before RegisterRoutes.
func (m *Manager) WithMutationMiddleware(mw func(http.Handler) http.Handler) {
	m.handlers.WithMutationMiddleware(mw)
}

// Middleware returns the authorization interceptor
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return m.interceptor.Middleware
}

// RefreshInventory publishes permission, role and grant counts and warns when the store does
// not hold exactly one active default role.
func (m *Manager) RefreshInventory(ctx context.Context) (*Inventory, error) {
	inv, err := m.store.Inventory(ctx)
	if err != nil {
		return nil, err
	}

	if m.telemetry != nil {
		m.telemetry.SetInventory(inv.ActivePermissions, inv.DeletedPermissions, inv.Roles, inv.Grants)
	}
	if inv.DefaultRoles != 1 {
		m.logger.WithField("default_roles", inv.DefaultRoles).Warn("Expected exactly one active default role")
	}
	return inv, nil
}

// GetStore returns the RBAC store
func (m *Manager) GetStore() *Store {
	return m.store
}

// GetAuthorizer returns the authorizer
func (m *Manager) GetAuthorizer() *Authorizer {
	return m.authorizer
}

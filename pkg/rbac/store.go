package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRoleNotFound is returned when a role id does not resolve to an active role
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is returned when a permission id does not resolve
	ErrPermissionNotFound = errors.New("permission not found")
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles permission, role and grant persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

const permissionColumns = `id, name, description, method, path, state, created_at, updated_at, deleted_at`

const roleColumns = `id, name, description, is_admin, is_default, state, created_at, updated_at, deleted_at`

// EnsurePermission inserts the endpoint's permission if absent, resurrecting a soft-deleted row.
// A resurrected permission loses every grant it carried before it was retired.
func (s *Store) EnsurePermission(ctx context.Context, ep Endpoint) (int64, RegistrationOutcome, error) {
	key := ep.Key()
	name := ep.Name
	if name == "" {
		name = key.String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	outcome := OutcomeCreated

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO permissions (name, description, method, path, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		ON CONFLICT (method, path) DO NOTHING
		RETURNING id
	`, name, permissionDescription, key.Method, key.Path, now).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		outcome = OutcomeResurrected
		err = tx.QueryRowContext(ctx, `
			UPDATE permissions SET state = 'active', deleted_at = NULL, updated_at = $1
			WHERE method = $2 AND path = $3 AND state = 'deleted'
			RETURNING id
		`, now, key.Method, key.Path).Scan(&id)

		if err == nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE permission_id = $1", id); err != nil {
				return 0, "", fmt.Errorf("failed to clear grants of %s: %w", key, err)
			}
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		outcome = OutcomeUnchanged
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM permissions WHERE method = $1 AND path = $2", key.Method, key.Path,
		).Scan(&id)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to ensure permission %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("failed to commit permission %s: %w", key, err)
	}
	return id, outcome, nil
}

// permissionDescription is stored on every discovered permission
const permissionDescription = "Discovered at startup"

// GetPermission retrieves a permission by id in any state
func (s *Store) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	return getPermission(ctx, s.db, id)
}

func getPermission(ctx context.Context, q queryer, id int64) (*Permission, error) {
	row := q.QueryRowContext(ctx, "SELECT "+permissionColumns+" FROM permissions WHERE id = $1", id)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrPermissionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns permissions ordered by path, then method
func (s *Store) ListPermissions(ctx context.Context, includeDeleted bool) ([]Permission, error) {
	query := "SELECT " + permissionColumns + " FROM permissions WHERE state = 'active' ORDER BY path, method"
	if includeDeleted {
		query = "SELECT " + permissionColumns + " FROM permissions ORDER BY path, method"
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	permissions := []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, *p)
	}
	return permissions, rows.Err()
}

// RetirePermission soft-deletes a permission. The bool is false when it was already deleted.
func (s *Store) RetirePermission(ctx context.Context, id int64) (*Permission, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE permissions SET state = 'deleted', deleted_at = $1, updated_at = $1
		WHERE id = $2 AND state = 'active'
	`, now, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to retire permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to retire permission: %w", err)
	}

	p, err := s.GetPermission(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, affected > 0, nil
}

// GetRole retrieves an active role by id
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	return getActiveRole(ctx, s.db, id)
}

func getActiveRole(ctx context.Context, q queryer, id int64) (*Role, error) {
	row := q.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = $1 AND state = 'active'", id)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRoleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// CreateRole inserts a role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	created, err := insertRole(ctx, s.db, role)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("failed to create role: name %q already exists", role.Name)
	}
	return nil
}

// insertRole reports false when a role with the same name already exists
func insertRole(ctx context.Context, q queryer, role *Role) (bool, error) {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO roles (name, description, is_admin, is_default, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, role.Name, role.Description, role.IsAdmin, role.IsDefault, now).Scan(&role.ID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create role: %w", err)
	}

	role.State = StateActive
	role.CreatedAt = now
	role.UpdatedAt = now
	return true, nil
}

// CountRoles counts roles in any state
func (s *Store) CountRoles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count roles: %w", err)
	}
	return count, nil
}

// ListRolesWithPermissions returns active roles with their active permissions nested.
// Active roles carry no deletion time, so DeletedAt is left nil.
func (s *Store) ListRolesWithPermissions(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.is_admin, r.is_default, r.state, r.created_at, r.updated_at,
		       p.id, p.name, p.description, p.method, p.path
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.state = 'active'
		WHERE r.state = 'active'
		ORDER BY r.id, p.path, p.method
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var role Role
		var permID sql.NullInt64
		var permName, permDescription, permMethod, permPath sql.NullString

		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.IsAdmin, &role.IsDefault, &role.State,
			&role.CreatedAt, &role.UpdatedAt,
			&permID, &permName, &permDescription, &permMethod, &permPath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		if n := len(roles); n == 0 || roles[n-1].ID != role.ID {
			role.Permissions = []Permission{}
			roles = append(roles, role)
		}
		if permID.Valid {
			current := &roles[len(roles)-1]
			current.Permissions = append(current.Permissions, Permission{
				ID:          permID.Int64,
				Name:        permName.String,
				Description: permDescription.String,
				Method:      permMethod.String,
				Path:        permPath.String,
				State:       StateActive,
			})
		}
	}
	return roles, rows.Err()
}

// AttachPermission grants a permission to a role. Changed is false when the grant already existed.
func (s *Store) AttachPermission(ctx context.Context, roleID, permissionID int64) (*RoleGrant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	role, err := getActiveRole(ctx, tx, roleID)
	if err != nil {
		return nil, err
	}
	permission, err := getPermission(ctx, tx, permissionID)
	if err != nil {
		return nil, err
	}
	if permission.State != StateActive {
		return nil, fmt.Errorf("%w: %d", ErrPermissionNotFound, permissionID)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to attach permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to attach permission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant: %w", err)
	}

	return &RoleGrant{
		RoleID:         role.ID,
		RoleName:       role.Name,
		PermissionID:   permission.ID,
		PermissionName: permission.Name,
		Changed:        affected > 0,
	}, nil
}

// DetachPermission revokes a permission from a role. Changed is false when there was nothing to revoke.
func (s *Store) DetachPermission(ctx context.Context, roleID, permissionID int64) (*RoleGrant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	role, err := getActiveRole(ctx, tx, roleID)
	if err != nil {
		return nil, err
	}
	permission, err := getPermission(ctx, tx, permissionID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2", roleID, permissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to detach permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to detach permission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revoke: %w", err)
	}

	return &RoleGrant{
		RoleID:         role.ID,
		RoleName:       role.Name,
		PermissionID:   permission.ID,
		PermissionName: permission.Name,
		Changed:        affected > 0,
	}, nil
}

// LoadGrants reads the caller's active role and its active permissions in a single statement,
// so the result is one committed snapshot. Role is nil when the user or its role cannot be resolved.
func (s *Store) LoadGrants(ctx context.Context, userID int64) (*CallerGrants, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.is_admin, r.is_default, r.state, r.created_at, r.updated_at,
		       p.method, p.path
		FROM users u
		JOIN roles r ON r.id = u.role_id AND r.state = 'active'
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.state = 'active'
		WHERE u.id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	defer rows.Close()

	grants := &CallerGrants{UserID: userID, Permissions: PermissionSet{}}
	for rows.Next() {
		var role Role
		var method, path sql.NullString

		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.IsAdmin, &role.IsDefault, &role.State,
			&role.CreatedAt, &role.UpdatedAt,
			&method, &path,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		if grants.Role == nil {
			grants.Role = &role
		}
		if method.Valid && path.Valid {
			grants.Permissions.Add(NewRouteKey(method.String, path.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	return grants, nil
}

// Inventory is a point-in-time count of authorization data
type Inventory struct {
	ActivePermissions  int
	DeletedPermissions int
	Roles              int
	DefaultRoles       int
	Grants             int
}

// Inventory counts permissions, roles and grants
func (s *Store) Inventory(ctx context.Context) (*Inventory, error) {
	var inv Inventory
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM permissions WHERE state = 'active'),
			(SELECT COUNT(*) FROM permissions WHERE state = 'deleted'),
			(SELECT COUNT(*) FROM roles WHERE state = 'active'),
			(SELECT COUNT(*) FROM roles WHERE state = 'active' AND is_default),
			(SELECT COUNT(*) FROM role_permissions)
	`).Scan(&inv.ActivePermissions, &inv.DeletedPermissions, &inv.Roles, &inv.DefaultRoles, &inv.Grants)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return &inv, nil
}

// CreateUser inserts a user account
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	return insertUser(ctx, s.db, user)
}

func insertUser(ctx context.Context, q queryer, user *User) error {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, user.Name, user.Email, user.PasswordHash, user.RoleID, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(row rowScanner) (*Permission, error) {
	var p Permission
	var deletedAt sql.NullTime
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Method, &p.Path, &p.State,
		&p.CreatedAt, &p.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var deletedAt sql.NullTime
	if err := row.Scan(
		&role.ID, &role.Name, &role.Description, &role.IsAdmin, &role.IsDefault, &role.State,
		&role.CreatedAt, &role.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		role.DeletedAt = &deletedAt.Time
	}
	return &role, nil
}

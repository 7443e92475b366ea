package rbac

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed seeds/default.yaml
var seedFS embed.FS

// GrantAll in a role's grant list grants every active permission
const GrantAll = "*"

// SeedDocument describes the roles, grants and accounts created on first boot
type SeedDocument struct {
	Roles []SeedRole `yaml:"roles"`
	Users []SeedUser `yaml:"users"`
}

// SeedRole is one role of the seed document
type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	IsAdmin     bool     `yaml:"isAdmin"`
	IsDefault   bool     `yaml:"isDefault"`
	Grants      []string `yaml:"grants"`
}

// SeedUser is one account of the seed document
type SeedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// DefaultSeed returns the embedded seed document
func DefaultSeed() (*SeedDocument, error) {
	data, err := seedFS.ReadFile("seeds/default.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded seed: %w", err)
	}
	return ParseSeed(data)
}

// LoadSeedFile reads a seed document from disk
func LoadSeedFile(path string) (*SeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a seed document
func ParseSeed(data []byte) (*SeedDocument, error) {
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid seed document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks role names are unique, at most one role is default and every user names a known role
func (d *SeedDocument) Validate() error {
	if len(d.Roles) == 0 {
		return fmt.Errorf("invalid seed document: no roles")
	}

	roles := make(map[string]bool, len(d.Roles))
	defaults := 0
	for _, role := range d.Roles {
		if role.Name == "" {
			return fmt.Errorf("invalid seed document: role without name")
		}
		if roles[role.Name] {
			return fmt.Errorf("invalid seed document: duplicate role %q", role.Name)
		}
		roles[role.Name] = true
		if role.IsDefault {
			defaults++
		}
		for _, grant := range role.Grants {
			if grant == GrantAll {
				continue
			}
			if _, ok := ParseRouteKey(grant); !ok {
				return fmt.Errorf("invalid seed document: role %q has malformed grant %q", role.Name, grant)
			}
		}
	}
	if defaults > 1 {
		return fmt.Errorf("invalid seed document: %d default roles, at most one allowed", defaults)
	}

	emails := make(map[string]bool, len(d.Users))
	for _, user := range d.Users {
		if user.Email == "" || user.Password == "" {
			return fmt.Errorf("invalid seed document: user %q needs an email and a password", user.Name)
		}
		if emails[user.Email] {
			return fmt.Errorf("invalid seed document: duplicate user %q", user.Email)
		}
		emails[user.Email] = true
		if !roles[user.Role] {
			return fmt.Errorf("invalid seed document: user %q has unknown role %q", user.Email, user.Role)
		}
	}
	return nil
}

// SeedResult reports what Seed did
type SeedResult struct {
	Seeded        bool
	Roles         int
	Grants        int
	SkippedGrants int
	Users         int
}

// Seeder applies a seed document to an empty store
type Seeder struct {
	store      *Store
	logger     logrus.FieldLogger
	bcryptCost int
}

// NewSeeder creates a seeder hashing passwords at bcrypt.DefaultCost
func NewSeeder(store *Store, logger logrus.FieldLogger) *Seeder {
	return &Seeder{
		store:      store,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the password hashing cost
func (s *Seeder) WithBcryptCost(cost int) *Seeder {
	s.bcryptCost = cost
	return s
}

// errSeedRace aborts the seed transaction when another instance seeded first
var errSeedRace = errors.New("roles already seeded")

// SeedIfEmpty applies doc when no role exists. It runs in one transaction; an instance that
// loses a concurrent seed sees the first role conflict and leaves the winner's data alone.
func (s *Seeder) SeedIfEmpty(ctx context.Context, doc *SeedDocument) (*SeedResult, error) {
	count, err := s.store.CountRoles(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.logger.WithField("roles", count).Debug("Roles present, skipping seed")
		return &SeedResult{}, nil
	}

	// Hash outside the transaction; bcrypt is slow on purpose
	hashes := make(map[string]string, len(doc.Users))
	for _, user := range doc.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", user.Email, err)
		}
		hashes[user.Email] = string(hash)
	}

	result, err := s.apply(ctx, doc, hashes)
	if errors.Is(err, errSeedRace) {
		s.logger.Info("Roles were seeded concurrently, skipping seed")
		return &SeedResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"roles":          result.Roles,
		"grants":         result.Grants,
		"skipped_grants": result.SkippedGrants,
		"users":          result.Users,
	}).Info("Seeded roles and accounts")
	return result, nil
}

func (s *Seeder) apply(ctx context.Context, doc *SeedDocument, hashes map[string]string) (*SeedResult, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start seed transaction: %w", err)
	}
	defer tx.Rollback()

	permissions, err := activePermissionIDs(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := &SeedResult{Seeded: true}
	roleIDs := make(map[string]int64, len(doc.Roles))
	for _, sr := range doc.Roles {
		role := &Role{Name: sr.Name, Description: sr.Description, IsAdmin: sr.IsAdmin, IsDefault: sr.IsDefault}
		created, err := insertRole(ctx, tx, role)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, errSeedRace
		}
		roleIDs[sr.Name] = role.ID
		result.Roles++

		granted, skipped, err := s.grantSeeded(ctx, tx, role, sr.Grants, permissions)
		if err != nil {
			return nil, err
		}
		result.Grants += granted
		result.SkippedGrants += skipped
	}

	for _, su := range doc.Users {
		user := &User{Name: su.Name, Email: su.Email, PasswordHash: hashes[su.Email], RoleID: roleIDs[su.Role]}
		if err := insertUser(ctx, tx, user); err != nil {
			return nil, err
		}
		result.Users++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}
	return result, nil
}

func (s *Seeder) grantSeeded(ctx context.Context, q queryer, role *Role, grants []string, permissions map[RouteKey]int64) (int, int, error) {
	ids := make(map[int64]bool)
	skipped := 0
	for _, grant := range grants {
		if grant == GrantAll {
			for _, id := range permissions {
				ids[id] = true
			}
			continue
		}

		key, _ := ParseRouteKey(grant)
		id, ok := permissions[key]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"role":  role.Name,
				"grant": grant,
			}).Warn("Seed grant names no registered route, skipping")
			skipped++
			continue
		}
		ids[id] = true
	}

	now := time.Now().UTC()
	for id := range ids {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (role_id, permission_id) DO NOTHING
		`, role.ID, id, now); err != nil {
			return 0, 0, fmt.Errorf("failed to grant seed permission to %s: %w", role.Name, err)
		}
	}
	return len(ids), skipped, nil
}

func activePermissionIDs(ctx context.Context, q queryer) (map[RouteKey]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, method, path FROM permissions WHERE state = 'active'")
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}
	defer rows.Close()

	ids := make(map[RouteKey]int64)
	for rows.Next() {
		var id int64
		var method, path string
		if err := rows.Scan(&id, &method, &path); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		ids[NewRouteKey(method, path)] = id
	}
	return ids, rows.Err()
}

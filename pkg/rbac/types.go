package rbac

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

// State is the lifecycle tag carried by permissions and roles
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// Permission is a single controllable capability: one HTTP method on one route template
type Permission struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Method      string     `json:"method"`
	Path        string     `json:"path"`
	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Key returns the (method, path) identity of the permission
func (p Permission) Key() RouteKey {
	return NewRouteKey(p.Method, p.Path)
}

// Role is a named bundle of permissions
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsAdmin     bool         `json:"isAdmin"`
	IsDefault   bool         `json:"isDefault"`
	State       State        `json:"state"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// User is the slice of an account the authorization core needs
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	RoleID       int64  `json:"roleId"`
}

// RouteKey identifies an endpoint by method and declared route template
type RouteKey struct {
	Method string
	Path   string
}

// NewRouteKey normalizes the method to upper case and the template to a leading slash
func NewRouteKey(method, path string) RouteKey {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return RouteKey{Method: method, Path: path}
}

// String renders the key as "METHOD /path"
func (k RouteKey) String() string {
	return k.Method + " " + k.Path
}

// ParseRouteKey parses the "METHOD /path" form produced by String
func ParseRouteKey(s string) (RouteKey, bool) {
	method, path, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return RouteKey{}, false
	}
	path = strings.TrimSpace(path)
	if method == "" || path == "" {
		return RouteKey{}, false
	}
	return NewRouteKey(method, path), true
}

// PermissionSet is the set of route keys granted to a role
type PermissionSet map[RouteKey]struct{}

// NewPermissionSet builds a set from the given keys
func NewPermissionSet(keys ...RouteKey) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		set.Add(k)
	}
	return set
}

// Add inserts a key
func (s PermissionSet) Add(k RouteKey) {
	s[k] = struct{}{}
}

// Contains reports whether the exact key is present
func (s PermissionSet) Contains(k RouteKey) bool {
	_, ok := s[k]
	return ok
}

// Endpoint describes one route served by the HTTP layer
type Endpoint struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Name       string `json:"name"`
	Controller string `json:"controller"`
	Action     string `json:"action"`
	Public     bool   `json:"-"`
}

// Key returns the normalized route key of the endpoint
func (e Endpoint) Key() RouteKey {
	return NewRouteKey(e.Method, e.Path)
}

// SortEndpoints orders endpoints by path, then method
func SortEndpoints(endpoints []Endpoint) {
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Path != endpoints[j].Path {
			return endpoints[i].Path < endpoints[j].Path
		}
		return endpoints[i].Method < endpoints[j].Method
	})
}

// RoleGrant is the result of attaching or detaching a permission
type RoleGrant struct {
	RoleID         int64  `json:"roleId"`
	RoleName       string `json:"roleName"`
	PermissionID   int64  `json:"permissionId"`
	PermissionName string `json:"permissionName"`
	// Changed is false when the relation was already in the requested state
	Changed bool `json:"-"`
}

// CallerGrants is the authorization snapshot for one user
type CallerGrants struct {
	UserID      int64
	Role        *Role
	Permissions PermissionSet
}

// RegistrationOutcome describes what Register did with one endpoint
type RegistrationOutcome string

const (
	OutcomeCreated     RegistrationOutcome = "created"
	OutcomeResurrected RegistrationOutcome = "resurrected"
	OutcomeUnchanged   RegistrationOutcome = "unchanged"
)

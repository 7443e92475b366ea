package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/shopfront/pkg/auth"
	"github.com/platinummonkey/shopfront/pkg/httputil"
)

// Admin API messages
const (
	MessageRoutesListed      = "All API routes retrieved successfully"
	MessagePermissionsListed = "All action permissions retrieved successfully"
	MessageRulesListed       = "All rules retrieved successfully"
	MessageInvalidRequest    = "Invalid request data"
	MessageRoleNotFound      = "Role not found"
	MessagePermissionMissing = "Permission not found"
	MessageAlreadyGranted    = "Permission already exists in this role"
	MessageGranted           = "Permission added to role successfully"
	MessageNotGranted        = "Permission does not exist in this role"
	MessageRevoked           = "Permission removed from role successfully"
	MessageAlreadyRetired    = "Permission is already retired"
	MessageRetired           = "Permission retired successfully"
)

// AdminStore is the persistence the administration API needs
type AdminStore interface {
	ListPermissions(ctx context.Context, includeDeleted bool) ([]Permission, error)
	ListRolesWithPermissions(ctx context.Context) ([]Role, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) (*RoleGrant, error)
	DetachPermission(ctx context.Context, roleID, permissionID int64) (*RoleGrant, error)
	RetirePermission(ctx context.Context, id int64) (*Permission, bool, error)
}

// MutationRecorder counts admin mutations. *observability.Metrics satisfies it.
type MutationRecorder interface {
	RecordAdminMutation(operation, outcome string)
}

// RouteRegistrar adds an endpoint to the route table
type RouteRegistrar interface {
	Handle(ep Endpoint, h http.Handler)
}

// Handlers provides the role-permission administration API
type Handlers struct {
	store     AdminStore
	routes    RouteSource
	recorder  MutationRecorder
	logger    logrus.FieldLogger
	validate  *validator.Validate
	tracer    trace.Tracer
	mutations func(http.Handler) http.Handler
}

// NewHandlers creates new administration handlers
func NewHandlers(store AdminStore, routes RouteSource, recorder MutationRecorder, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		store:     store,
		routes:    routes,
		recorder:  recorder,
		logger:    logger,
		validate:  validator.New(),
		tracer:    otel.Tracer(tracerName),
		mutations: func(next http.Handler) http.Handler { return next },
	}
}

// WithMutationMiddleware wraps the POST endpoints, e.g. with rate limiting and body limits
func (h *Handlers) WithMutationMiddleware(mw func(http.Handler) http.Handler) *Handlers {
	h.mutations = mw
	return h
}

// RegisterRoutes registers the administration endpoints. None is public.
func (h *Handlers) RegisterRoutes(router RouteRegistrar) {
	router.Handle(Endpoint{Method: http.MethodGet, Path: "/routes", Name: "Routes.GetAllRoutes", Controller: "Routes", Action: "GetAllRoutes"},
		http.HandlerFunc(h.ListRoutes))
	router.Handle(Endpoint{Method: http.MethodGet, Path: "/routes/from-database", Name: "Routes.GetAllRoutesFromDatabase", Controller: "Routes", Action: "GetAllRoutesFromDatabase"},
		http.HandlerFunc(h.ListPermissions))
	router.Handle(Endpoint{Method: http.MethodGet, Path: "/routes/all-rules", Name: "Routes.GetAllRules", Controller: "Routes", Action: "GetAllRules"},
		http.HandlerFunc(h.ListRules))

	router.Handle(Endpoint{Method: http.MethodPost, Path: "/routes/add-permission-to-role", Name: "Routes.AddPermissionToRole", Controller: "Routes", Action: "AddPermissionToRole"},
		h.mutations(http.HandlerFunc(h.AddPermissionToRole)))
	router.Handle(Endpoint{Method: http.MethodPost, Path: "/routes/remove-permission-from-role", Name: "Routes.RemovePermissionFromRole", Controller: "Routes", Action: "RemovePermissionFromRole"},
		h.mutations(http.HandlerFunc(h.RemovePermissionFromRole)))
	router.Handle(Endpoint{Method: http.MethodPost, Path: "/routes/retire-permission", Name: "Routes.RetirePermission", Controller: "Routes", Action: "RetirePermission"},
		h.mutations(http.HandlerFunc(h.RetirePermission)))
}

// RolePermissionRequest is the body of the attach and detach endpoints
type RolePermissionRequest struct {
	RoleID             int64 `json:"roleId" validate:"required,gt=0"`
	ActionPermissionID int64 `json:"actionPermissionId" validate:"required,gt=0"`
}

// RetirePermissionRequest is the body of the retire endpoint
type RetirePermissionRequest struct {
	ActionPermissionID int64 `json:"actionPermissionId" validate:"required,gt=0"`
}

// Rule is one role with its permissions as served by all-rules
type Rule struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	IsAdmin     bool             `json:"isAdmin"`
	IsDefault   bool             `json:"isDefault"`
	Permissions []RulePermission `json:"permissions"`
}

// RulePermission is the nested permission projection of a Rule
type RulePermission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Method      string `json:"method"`
}

// ListRoutes serves the live route table
func (h *Handlers) ListRoutes(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.routes.Enumerate()
	if err != nil {
		h.logger.WithError(err).Error("Failed to enumerate routes")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteList(w, MessageRoutesListed, endpoints, len(endpoints))
}

// ListPermissions serves persisted permissions. ?includeDeleted=true adds retired ones.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := httputil.ParseQueryBool(r, "includeDeleted", false)
	if err != nil {
		httputil.WriteBadRequest(w, MessageInvalidRequest)
		return
	}

	permissions, err := h.store.ListPermissions(r.Context(), includeDeleted)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteList(w, MessagePermissionsListed, permissions, len(permissions))
}

// ListRules serves active roles with their active permissions
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRolesWithPermissions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list rules")
		httputil.WriteInternalError(w)
		return
	}

	rules := make([]Rule, 0, len(roles))
	for _, role := range roles {
		rule := Rule{
			ID:          role.ID,
			Name:        role.Name,
			Description: role.Description,
			IsAdmin:     role.IsAdmin,
			IsDefault:   role.IsDefault,
			Permissions: make([]RulePermission, 0, len(role.Permissions)),
		}
		for _, p := range role.Permissions {
			rule.Permissions = append(rule.Permissions, RulePermission{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Path:        p.Path,
				Method:      p.Method,
			})
		}
		rules = append(rules, rule)
	}

	httputil.WriteList(w, MessageRulesListed, rules, len(rules))
}

// AddPermissionToRole grants a permission to a role. Granting twice succeeds.
func (h *Handlers) AddPermissionToRole(w http.ResponseWriter, r *http.Request) {
	h.mutateGrant(w, r, "attach", h.store.AttachPermission, MessageGranted, MessageAlreadyGranted)
}

// RemovePermissionFromRole revokes a permission from a role. Revoking an absent grant succeeds.
func (h *Handlers) RemovePermissionFromRole(w http.ResponseWriter, r *http.Request) {
	h.mutateGrant(w, r, "detach", h.store.DetachPermission, MessageRevoked, MessageNotGranted)
}

type grantMutation func(ctx context.Context, roleID, permissionID int64) (*RoleGrant, error)

func (h *Handlers) mutateGrant(w http.ResponseWriter, r *http.Request, operation string, mutate grantMutation, changedMsg, unchangedMsg string) {
	var req RolePermissionRequest
	if err := h.decode(r, &req); err != nil {
		h.record(operation, "invalid")
		httputil.WriteBadRequest(w, MessageInvalidRequest)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), spanName(operation), trace.WithAttributes(
		attribute.Int64("rbac.role_id", req.RoleID),
		attribute.Int64("rbac.permission_id", req.ActionPermissionID),
	))
	defer span.End()

	logger := h.logger.WithFields(logrus.Fields{
		"operation":     operation,
		"role_id":       req.RoleID,
		"permission_id": req.ActionPermissionID,
		"actor_user_id": auth.PrincipalFromContext(ctx).UserID,
	})

	grant, err := mutate(ctx, req.RoleID, req.ActionPermissionID)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		h.record(operation, "not_found")
		httputil.WriteNotFound(w, MessageRoleNotFound)
		return
	case errors.Is(err, ErrPermissionNotFound):
		h.record(operation, "not_found")
		httputil.WriteNotFound(w, MessagePermissionMissing)
		return
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant mutation failed")
		h.record(operation, "error")
		logger.WithError(err).Error("Failed to update role permissions")
		httputil.WriteInternalError(w)
		return
	}

	outcome, message := "changed", changedMsg
	if !grant.Changed {
		outcome, message = "unchanged", unchangedMsg
	}
	span.SetAttributes(attribute.String("rbac.outcome", outcome))
	h.record(operation, outcome)
	logger.WithField("outcome", outcome).Info("Role permissions updated")

	httputil.WriteSuccess(w, message, grant)
}

// RetirePermission soft-deletes a permission so it no longer authorizes anything
func (h *Handlers) RetirePermission(w http.ResponseWriter, r *http.Request) {
	var req RetirePermissionRequest
	if err := h.decode(r, &req); err != nil {
		h.record("retire", "invalid")
		httputil.WriteBadRequest(w, MessageInvalidRequest)
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"operation":     "retire",
		"permission_id": req.ActionPermissionID,
		"actor_user_id": auth.PrincipalFromContext(r.Context()).UserID,
	})

	permission, changed, err := h.store.RetirePermission(r.Context(), req.ActionPermissionID)
	if errors.Is(err, ErrPermissionNotFound) {
		h.record("retire", "not_found")
		httputil.WriteNotFound(w, MessagePermissionMissing)
		return
	}
	if err != nil {
		h.record("retire", "error")
		logger.WithError(err).Error("Failed to retire permission")
		httputil.WriteInternalError(w)
		return
	}

	if !changed {
		h.record("retire", "unchanged")
		httputil.WriteSuccess(w, MessageAlreadyRetired, permission)
		return
	}
	h.record("retire", "changed")
	logger.WithField("permission", permission.Key().String()).Info("Permission retired")
	httputil.WriteSuccess(w, MessageRetired, permission)
}

func (h *Handlers) decode(r *http.Request, dest interface{}) error {
	if err := httputil.ParseJSON(r, dest); err != nil {
		return err
	}
	return h.validate.Struct(dest)
}

func (h *Handlers) record(operation, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordAdminMutation(operation, outcome)
	}
}

func spanName(operation string) string {
	if operation == "attach" {
		return "rbac.AttachPermission"
	}
	return "rbac.DetachPermission"
}

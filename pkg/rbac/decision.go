package rbac

import (
	"net/http"
	"strings"
)

// Verdict is the outcome of an authorization decision
type Verdict int

// The zero Verdict is a denial
const (
	verdictUnset Verdict = iota
	Allow
	DenyUnauthenticated
	DenyForbidden
)

// String returns the metric/log label of the verdict
func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "unauthenticated"
	default:
		return "forbidden"
	}
}

// StatusCode maps the verdict to its HTTP status
func (v Verdict) StatusCode() int {
	switch v {
	case Allow:
		return http.StatusOK
	case DenyUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Reason explains which rule produced a verdict
type Reason string

const (
	ReasonPublic          Reason = "public"
	ReasonPreflight       Reason = "preflight"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonMissingIdentity Reason = "missing_identity"
	ReasonRoleMissing     Reason = "role_missing"
	ReasonAdmin           Reason = "admin"
	ReasonGranted         Reason = "granted"
	ReasonNotGranted      Reason = "not_granted"
	ReasonStoreError      Reason = "store_error"
)

// DecisionInput carries everything Decide looks at
type DecisionInput struct {
	Public        bool
	Method        string
	RouteTemplate string
	Authenticated bool
	Role          *Role
	Permissions   PermissionSet
}

// Decide evaluates the authorization rules in order. It performs no I/O.
func Decide(in DecisionInput) Verdict {
	v, _ := DecideWithReason(in)
	return v
}

// DecideWithReason is Decide plus the rule that fired
func DecideWithReason(in DecisionInput) (Verdict, Reason) {
	if v, reason, ok := decideWithoutGrants(in); ok {
		return v, reason
	}
	if in.Role == nil {
		return DenyForbidden, ReasonRoleMissing
	}
	if in.Role.IsAdmin {
		return Allow, ReasonAdmin
	}
	if in.Permissions.Contains(NewRouteKey(in.Method, in.RouteTemplate)) {
		return Allow, ReasonGranted
	}
	return DenyForbidden, ReasonNotGranted
}

// decideWithoutGrants applies the rules that need neither the caller's role nor its
// permissions. ok is false when the decision depends on a grant lookup.
func decideWithoutGrants(in DecisionInput) (v Verdict, reason Reason, ok bool) {
	switch {
	case in.Public:
		return Allow, ReasonPublic, true
	case strings.EqualFold(in.Method, http.MethodOptions):
		return Allow, ReasonPreflight, true
	case !in.Authenticated:
		return DenyUnauthenticated, ReasonUnauthenticated, true
	}
	return verdictUnset, "", false
}

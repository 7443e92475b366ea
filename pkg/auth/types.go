package auth

import (
	"context"

	"github.com/platinummonkey/shopfront/pkg/contextkeys"
)

// Principal is the identity attached to a request by authentication.
// UserID is zero when the token carried no usable user identifier.
type Principal struct {
	Authenticated bool   `json:"authenticated"`
	UserID        int64  `json:"userId"`
	Subject       string `json:"subject,omitempty"`
}

// Anonymous is the principal of a request without valid credentials
var Anonymous = Principal{}

// WithPrincipal stores the principal in the context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}

// PrincipalFromContext returns the request principal, or Anonymous when none was attached
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal); ok {
		return p
	}
	return Anonymous
}

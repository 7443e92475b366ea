package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/shopfront/pkg/auth"
)

type stubLoader struct {
	grants *CallerGrants
	err    error
	block  bool
	calls  int
}

func (s *stubLoader) LoadGrants(ctx context.Context, userID int64) (*CallerGrants, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.grants, nil
}

func sellerGrants() *CallerGrants {
	return &CallerGrants{
		UserID:      3,
		Role:        &Role{ID: 3, Name: "Seller"},
		Permissions: NewPermissionSet(NewRouteKey("PUT", "/api/products/{id}")),
	}
}

func TestAuthorizer_ShortCircuitsWithoutLookup(t *testing.T) {
	tests := []struct {
		name        string
		req         AccessRequest
		wantReason  Reason
		wantVerdict Verdict
	}{
		{
			name:        "public",
			req:         AccessRequest{Endpoint: Endpoint{Path: "/api/products", Public: true}, Method: "GET"},
			wantVerdict: Allow,
			wantReason:  ReasonPublic,
		},
		{
			name:        "preflight",
			req:         AccessRequest{Endpoint: Endpoint{Path: "/api/orders"}, Method: "OPTIONS"},
			wantVerdict: Allow,
			wantReason:  ReasonPreflight,
		},
		{
			name:        "anonymous",
			req:         AccessRequest{Endpoint: Endpoint{Path: "/api/orders"}, Method: "GET", Principal: auth.Anonymous},
			wantVerdict: DenyUnauthenticated,
			wantReason:  ReasonUnauthenticated,
		},
		{
			name:        "authenticated without user id",
			req:         AccessRequest{Endpoint: Endpoint{Path: "/api/orders"}, Method: "GET", Principal: auth.Principal{Authenticated: true}},
			wantVerdict: DenyForbidden,
			wantReason:  ReasonMissingIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &stubLoader{grants: sellerGrants()}
			telemetry := newRecordingTelemetry()
			authorizer := NewAuthorizer(loader, telemetry, newTestLogger(), time.Second)

			decision := authorizer.Authorize(context.Background(), tt.req)
			assert.Equal(t, tt.wantVerdict, decision.Verdict)
			assert.Equal(t, tt.wantReason, decision.Reason)
			assert.Zero(t, loader.calls)
			assert.Equal(t, 1, telemetry.decisions[tt.wantVerdict.String()+"/"+string(tt.wantReason)])
		})
	}
}

func TestAuthorizer_MatchesGrants(t *testing.T) {
	loader := &stubLoader{grants: sellerGrants()}
	authorizer := NewAuthorizer(loader, nil, newTestLogger(), time.Second)
	seller := auth.Principal{Authenticated: true, UserID: 3}

	allowed := authorizer.Authorize(context.Background(), AccessRequest{
		Endpoint:  Endpoint{Method: "PUT", Path: "/api/products/{id}"},
		Method:    "PUT",
		Principal: seller,
	})
	assert.True(t, allowed.Allowed())
	assert.Equal(t, ReasonGranted, allowed.Reason)
	require.NotNil(t, allowed.Role)
	assert.Equal(t, "Seller", allowed.Role.Name)

	denied := authorizer.Authorize(context.Background(), AccessRequest{
		Endpoint:  Endpoint{Method: "DELETE", Path: "/api/products/{id}"},
		Method:    "DELETE",
		Principal: seller,
	})
	assert.False(t, denied.Allowed())
	assert.Equal(t, DenyForbidden, denied.Verdict)
	assert.Equal(t, ReasonNotGranted, denied.Reason)
	assert.Equal(t, 2, loader.calls)
}

func TestAuthorizer_UnresolvedRole(t *testing.T) {
	loader := &stubLoader{grants: &CallerGrants{UserID: 9, Permissions: PermissionSet{}}}
	authorizer := NewAuthorizer(loader, nil, newTestLogger(), time.Second)

	decision := authorizer.Authorize(context.Background(), AccessRequest{
		Endpoint:  Endpoint{Path: "/api/orders"},
		Method:    "GET",
		Principal: auth.Principal{Authenticated: true, UserID: 9},
	})
	assert.Equal(t, DenyForbidden, decision.Verdict)
	assert.Equal(t, ReasonRoleMissing, decision.Reason)
}

func TestAuthorizer_FailsClosed(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		telemetry := newRecordingTelemetry()
		authorizer := NewAuthorizer(&stubLoader{err: errors.New("connection refused")}, telemetry, newTestLogger(), time.Second)

		decision := authorizer.Authorize(context.Background(), AccessRequest{
			Endpoint:  Endpoint{Path: "/api/orders"},
			Method:    "GET",
			Principal: auth.Principal{Authenticated: true, UserID: 1},
		})
		assert.Equal(t, DenyForbidden, decision.Verdict)
		assert.Equal(t, ReasonStoreError, decision.Reason)
		assert.Equal(t, 1, telemetry.lookupErrors)
	})

	t.Run("query timeout", func(t *testing.T) {
		authorizer := NewAuthorizer(&stubLoader{block: true}, nil, newTestLogger(), 10*time.Millisecond)

		decision := authorizer.Authorize(context.Background(), AccessRequest{
			Endpoint:  Endpoint{Path: "/api/orders"},
			Method:    "GET",
			Principal: auth.Principal{Authenticated: true, UserID: 1},
		})
		assert.Equal(t, DenyForbidden, decision.Verdict)
		assert.Equal(t, ReasonStoreError, decision.Reason)
	})
	t.Run("loader returns no grants", func(t *testing.T) {
		loader := &stubLoader{}
		authorizer := NewAuthorizer(loader, nil, newTestLogger(), time.Second)

		decision := authorizer.Authorize(context.Background(), AccessRequest{
			Endpoint:  Endpoint{Path: "/api/orders"},
			Method:    "GET",
			Principal: auth.Principal{Authenticated: true, UserID: 1},
		})
		assert.Equal(t, 1, loader.calls)
		assert.False(t, decision.Allowed())
		assert.Equal(t, DenyForbidden, decision.Verdict)
		assert.Equal(t, ReasonRoleMissing, decision.Reason)
		assert.Nil(t, decision.Role)
	})
}

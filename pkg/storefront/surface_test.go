package storefront

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/shopfront/pkg/httputil"
	"github.com/platinummonkey/shopfront/pkg/rbac"
	"github.com/platinummonkey/shopfront/pkg/routing"
)

func TestEndpoints_Unique(t *testing.T) {
	seen := make(map[rbac.RouteKey]bool)
	for _, ep := range Endpoints() {
		assert.False(t, seen[ep.Key()], "duplicate endpoint %s", ep.Key())
		seen[ep.Key()] = true
	}
}

func TestEndpoints_PublicSet(t *testing.T) {
	var public []string
	for _, ep := range Endpoints() {
		if ep.Public {
			public = append(public, ep.Key().String())
		}
	}

	assert.ElementsMatch(t, []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"POST /api/auth/refresh-token",
		"POST /api/auth/google-login",
		"GET /api/categories",
		"GET /api/categories/{id}",
		"GET /api/products",
		"GET /api/products/{id}",
	}, public)
}

func TestEndpoints_CoverDefaultSeedGrants(t *testing.T) {
	seed, err := rbac.DefaultSeed()
	require.NoError(t, err)

	served := make(map[rbac.RouteKey]bool)
	for _, ep := range Endpoints() {
		served[ep.Key()] = true
	}

	for _, role := range seed.Roles {
		for _, grant := range role.Grants {
			if grant == rbac.GrantAll {
				continue
			}
			key, ok := rbac.ParseRouteKey(grant)
			require.True(t, ok)
			assert.True(t, served[key], "role %s is granted %s, which the storefront does not serve", role.Name, grant)
		}
	}
}

func TestRegisterRoutes(t *testing.T) {
	table := routing.NewTable()
	RegisterRoutes(table)

	endpoints, err := table.Enumerate()
	require.NoError(t, err)
	assert.Len(t, endpoints, len(Endpoints()))

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/api/auth/login"},
		{"GET", "/api/cart"},
		{"PUT", "/api/products/42"},
		{"GET", "/api/products/7/comments/3"},
		{"PUT", "/api/seller/orders/9/status"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			table.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusNotImplemented, rec.Code)
			var body httputil.Envelope
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, MessageNotImplemented, body.Message)
		})
	}
}

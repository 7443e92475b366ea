package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/shopfront/pkg/httputil"
	"github.com/platinummonkey/shopfront/pkg/rbac"
)

const testToken = "test-token"

// newAdminServer fakes the administration API and records the last mutation body
func newAdminServer(t *testing.T, lastBody *map[string]int64) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			httputil.WriteUnauthorized(w, "Unauthorized")
			return
		}

		if r.Method == http.MethodPost && lastBody != nil {
			*lastBody = map[string]int64{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(lastBody))
		}

		switch r.Method + " " + r.URL.Path {
		case "GET /routes":
			httputil.WriteList(w, rbac.MessageRoutesListed, []rbac.Endpoint{
				{Method: "GET", Path: "/api/cart", Name: "Cart.GetCart", Controller: "Cart", Action: "GetCart"},
				{Method: "PUT", Path: "/api/products/{id}", Name: "Products.UpdateProduct", Controller: "Products", Action: "UpdateProduct"},
			}, 2)
		case "GET /routes/from-database":
			permissions := []rbac.Permission{{ID: 1, Method: "GET", Path: "/api/cart", Name: "Cart.GetCart", State: rbac.StateActive}}
			if r.URL.Query().Get("includeDeleted") == "true" {
				permissions = append(permissions, rbac.Permission{ID: 2, Method: "GET", Path: "/api/legacy", Name: "Legacy", State: rbac.StateDeleted})
			}
			httputil.WriteList(w, rbac.MessagePermissionsListed, permissions, len(permissions))
		case "GET /routes/all-rules":
			httputil.WriteList(w, rbac.MessageRulesListed, []rbac.Rule{
				{ID: 1, Name: "Admin", IsAdmin: true, Permissions: []rbac.RulePermission{}},
				{ID: 2, Name: "User", IsDefault: true, Permissions: []rbac.RulePermission{{ID: 1, Method: "GET", Path: "/api/cart"}}},
				{ID: 3, Name: "Auditor", Permissions: []rbac.RulePermission{}},
			}, 3)
		case "POST /routes/add-permission-to-role":
			if (*lastBody)["roleId"] == 99 {
				httputil.WriteNotFound(w, rbac.MessageRoleNotFound)
				return
			}
			httputil.WriteSuccess(w, rbac.MessageGranted, rbac.RoleGrant{RoleID: 2, RoleName: "User", PermissionID: 5, PermissionName: "Products.UpdateProduct"})
		case "POST /routes/remove-permission-from-role":
			httputil.WriteSuccess(w, rbac.MessageNotGranted, rbac.RoleGrant{RoleID: 2, RoleName: "User", PermissionID: 5, PermissionName: "Products.UpdateProduct"})
		case "POST /routes/retire-permission":
			httputil.WriteSuccess(w, rbac.MessageRetired, rbac.Permission{ID: 5, Method: "PUT", Path: "/api/products/{id}", State: rbac.StateDeleted})
		default:
			httputil.WriteNotFound(w, "Not found")
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRoutesCommand(t *testing.T) {
	server := newAdminServer(t, nil)

	output, err := captureStdout(t, func() error {
		return runRoutes([]string{"-server", server.URL, "-token", testToken})
	})

	require.NoError(t, err)
	assert.Contains(t, output, "METHOD")
	assert.Contains(t, output, "/api/products/{id}")
	assert.Contains(t, output, "Products.UpdateProduct")
}

func TestPermissionsCommand(t *testing.T) {
	server := newAdminServer(t, nil)

	output, err := captureStdout(t, func() error {
		return runPermissions([]string{"-server", server.URL, "-token", testToken})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "/api/cart")
	assert.NotContains(t, output, "/api/legacy")

	output, err = captureStdout(t, func() error {
		return runPermissions([]string{"-server", server.URL, "-token", testToken, "-include-deleted"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "/api/legacy")
	assert.Contains(t, output, "deleted")
}

func TestRulesCommand(t *testing.T) {
	server := newAdminServer(t, nil)

	output, err := captureStdout(t, func() error {
		return runRules([]string{"-server", server.URL, "-token", testToken})
	})

	require.NoError(t, err)
	assert.Contains(t, output, "Admin (admin)")
	assert.Contains(t, output, "User (default)")
	assert.Contains(t, output, "Auditor")
	assert.Contains(t, output, "/api/cart")
}

func TestGrantAndRevokeCommands(t *testing.T) {
	var body map[string]int64
	server := newAdminServer(t, &body)

	output, err := captureStdout(t, func() error {
		return runGrant([]string{"-server", server.URL, "-token", testToken, "-role", "2", "-permission", "5"})
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"roleId": 2, "actionPermissionId": 5}, body)
	assert.Contains(t, output, rbac.MessageGranted)
	assert.Contains(t, output, "Products.UpdateProduct")

	output, err = captureStdout(t, func() error {
		return runRevoke([]string{"-server", server.URL, "-token", testToken, "-role", "2", "-permission", "5"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, rbac.MessageNotGranted)
}

func TestGrantCommand_Errors(t *testing.T) {
	var body map[string]int64
	server := newAdminServer(t, &body)

	tests := []struct {
		name       string
		args       []string
		wantStatus int
		wantMsg    string
	}{
		{
			name:    "missing role",
			args:    []string{"-server", server.URL, "-token", testToken, "-permission", "5"},
			wantMsg: "-role must be a positive id",
		},
		{
			name:    "negative permission",
			args:    []string{"-server", server.URL, "-token", testToken, "-role", "2", "-permission", "-1"},
			wantMsg: "-permission must be a positive id",
		},
		{
			name:       "unknown role",
			args:       []string{"-server", server.URL, "-token", testToken, "-role", "99", "-permission", "5"},
			wantStatus: http.StatusNotFound,
			wantMsg:    rbac.MessageRoleNotFound,
		},
		{
			name:       "bad token",
			args:       []string{"-server", server.URL, "-token", "nope", "-role", "2", "-permission", "5"},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := captureStdout(t, func() error { return runGrant(tt.args) })
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var apiErr *APIError
			if tt.wantStatus != 0 {
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}

func TestRetireCommand(t *testing.T) {
	var body map[string]int64
	server := newAdminServer(t, &body)

	output, err := captureStdout(t, func() error {
		return runRetire([]string{"-server", server.URL, "-token", testToken, "-permission", "5"})
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"actionPermissionId": 5}, body)
	assert.Contains(t, output, rbac.MessageRetired)
	assert.Contains(t, output, "/api/products/{id}")
}

func TestGlobalFlagsFromEnvironment(t *testing.T) {
	server := newAdminServer(t, nil)
	t.Setenv(EnvServer, server.URL)
	t.Setenv(EnvToken, testToken)

	output, err := captureStdout(t, func() error { return runRoutes(nil) })

	require.NoError(t, err)
	assert.Contains(t, output, "/api/cart")
}

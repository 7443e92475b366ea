// Package rbac provides data-driven route authorization for the shopfront API.
//
// # Overview
//
// Every HTTP endpoint is a permission: one HTTP method on one route template, such as
// PUT /api/products/{id}. Endpoints are discovered from the router at boot and recorded in
// the permissions table. Operators grant permissions to roles at runtime, and every request
// is checked against the caller's role before its handler runs.
//
// # Architecture
//
// The package consists of five key components:
//
//  1. Store: permissions, roles, role grants and users in PostgreSQL (SQLite in tests)
//  2. Registrar: enumerates a RouteSource and ensures one permission row per endpoint
//  3. Decide: a pure function from (endpoint, caller role, permission set) to a Verdict
//  4. Interceptor: router middleware that resolves the matched endpoint and writes 401/403
//  5. Handlers: the administration API under /routes
//
// Manager wires them together:
//
//	manager := rbac.NewManager(db, table, metrics, logger, rbac.DefaultConfig())
//	if err := manager.Initialize(ctx); err != nil { ... }   // migrations
//	manager.RegisterRoutes(table)                            // admin API joins the table
//	if _, err := manager.Bootstrap(ctx); err != nil { ... } // register, then seed
//	router.Use(authn.Handler, manager.Middleware())
//
// # Decision Rules
//
// Decide applies these rules in order:
//
//	public endpoint              -> Allow
//	OPTIONS                      -> Allow
//	not authenticated            -> DenyUnauthenticated (401)
//	role unresolvable            -> DenyForbidden (403)
//	admin role                   -> Allow
//	(method, template) granted   -> Allow
//	otherwise                    -> DenyForbidden (403)
//
// Matching always uses the route template bound to the matched endpoint, never the concrete
// request path. A grant on PUT /api/products/{id} allows PUT /api/products/42.
//
// Any error while loading the caller's grants denies the request.
//
// # Permission Lifecycle
//
// (method, path) is unique over all rows. Retiring a permission marks it deleted; it then
// authorizes nothing and can no longer be granted. If the route is discovered again, the same
// row becomes active and loses every grant it held before it was retired.
//
// # Default Role
//
// At most one active role may be the default, enforced by a partial unique index. The
// inventory job logs a warning when there is none.
package rbac

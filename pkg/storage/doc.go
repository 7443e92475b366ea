// Package storage holds connection helpers for shopfront's backing services.
//
// The postgres subpackage opens the PostgreSQL pool that backs the permission
// store and the optional Redis client used for distributed rate limiting.
// Schema and queries live with their owners in pkg/rbac.
package storage

// Package config loads shopfront configuration from SHOPFRONT_* environment variables.
//
// Nested sections map to prefixed names: Server.Port is SHOPFRONT_SERVER_PORT,
// Database.URL is SHOPFRONT_DATABASE_URL, Bootstrap.SeedFile is SHOPFRONT_BOOTSTRAP_SEED_FILE.
// SHOPFRONT_DATABASE_URL and SHOPFRONT_AUTH_JWT_SECRET are required.
package config

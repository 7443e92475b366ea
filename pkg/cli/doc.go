// Package cli provides the shopfront-cli command-line interface for route permission
// administration.
//
// # Commands
//
// routes: List the routes the server serves
//
//	shopfront-cli routes
//
// permissions: List registered permissions, optionally with retired ones
//
//	shopfront-cli permissions --include-deleted
//
// rules: List roles with their granted permissions
//
//	shopfront-cli rules
//
// grant / revoke: Attach a permission to a role or detach it
//
//	shopfront-cli grant --role 2 --permission 17
//	shopfront-cli revoke --role 2 --permission 17
//
// retire: Retire a permission
//
//	shopfront-cli retire --permission 17
//
// # Configuration
//
//	export SHOPFRONT_SERVER="https://shop.example.com"
//	export SHOPFRONT_TOKEN="<admin bearer token>"
//	# Or use --server and --token
//
// A non-2xx answer is reported with the server's message and makes the command fail.
package cli

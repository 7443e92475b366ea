// Package routing keeps the shopfront route table.
//
// Table wraps a gorilla/mux router. Each endpoint is registered together with its metadata
// (name, controller, action, public flag), which the authorization layer reads back in two
// ways: Enumerate lists every endpoint at boot for permission registration, and Resolve
// returns the endpoint matched for a request so it can be authorized by route template.
//
//	table := routing.NewTable()
//	table.HandleFunc(rbac.Endpoint{Method: "GET", Path: "/api/products", Name: "products.list", Public: true}, listProducts)
//	table.Router().Use(authn.Handler, interceptor.Middleware)
package routing

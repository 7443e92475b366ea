package routing

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/shopfront/pkg/rbac"
)

// Table is a gorilla/mux router that remembers the endpoint metadata of every route
type Table struct {
	router *mux.Router

	mu        sync.RWMutex
	endpoints map[*mux.Route]rbac.Endpoint
	keys      map[rbac.RouteKey]bool
}

// NewTable creates an empty route table
func NewTable() *Table {
	return &Table{
		router:    mux.NewRouter(),
		endpoints: make(map[*mux.Route]rbac.Endpoint),
		keys:      make(map[rbac.RouteKey]bool),
	}
}

// Router returns the underlying router, e.g. to install middleware with Use
func (t *Table) Router() *mux.Router {
	return t.router
}

// ServeHTTP dispatches to the router
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

// Handle registers h for the endpoint. Registering the same method and template twice panics.
func (t *Table) Handle(ep rbac.Endpoint, h http.Handler) {
	key := ep.Key()
	ep.Method, ep.Path = key.Method, key.Path
	if ep.Name == "" {
		ep.Name = key.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.keys[key] {
		panic(fmt.Sprintf("routing: duplicate endpoint %s", key))
	}
	route := t.router.Handle(ep.Path, h).Methods(ep.Method)
	t.endpoints[route] = ep
	t.keys[key] = true
}

// HandleFunc registers a handler function for the endpoint
func (t *Table) HandleFunc(ep rbac.Endpoint, f func(http.ResponseWriter, *http.Request)) {
	t.Handle(ep, http.HandlerFunc(f))
}

// Enumerate walks the router and returns one endpoint per method and template, sorted by
// path then method. Routes added to the router directly, without metadata, are private and
// named after their template; a route without methods is recorded as GET.
func (t *Table) Enumerate() ([]rbac.Endpoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var endpoints []rbac.Endpoint
	err := t.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if route.GetHandler() == nil {
			return nil
		}
		if ep, ok := t.endpoints[route]; ok {
			endpoints = append(endpoints, ep)
			return nil
		}

		tpl, err := route.GetPathTemplate()
		if err != nil {
			// Host or header only routes have no template to authorize against
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil || len(methods) == 0 {
			methods = []string{http.MethodGet}
		}
		for _, method := range methods {
			key := rbac.NewRouteKey(method, tpl)
			endpoints = append(endpoints, rbac.Endpoint{Method: key.Method, Path: key.Path, Name: key.Path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk routes: %w", err)
	}

	rbac.SortEndpoints(endpoints)
	return endpoints, nil
}

// Resolve returns the endpoint mux matched for the request. It only works inside the router,
// that is from middleware installed with Router().Use or from a handler.
func (t *Table) Resolve(r *http.Request) (rbac.Endpoint, bool) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return rbac.Endpoint{}, false
	}

	t.mu.RLock()
	ep, ok := t.endpoints[route]
	t.mu.RUnlock()
	if ok {
		return ep, true
	}

	tpl, err := route.GetPathTemplate()
	if err != nil {
		return rbac.Endpoint{}, false
	}
	key := rbac.NewRouteKey(r.Method, tpl)
	return rbac.Endpoint{Method: key.Method, Path: key.Path, Name: key.Path}, true
}

package storefront

import (
	"net/http"

	"github.com/platinummonkey/shopfront/pkg/httputil"
	"github.com/platinummonkey/shopfront/pkg/rbac"
)

// MessageNotImplemented is returned by every storefront handler
const MessageNotImplemented = "Not implemented"

type controller struct {
	name    string
	prefix  string
	actions []action
}

type action struct {
	method string
	path   string
	name   string
	public bool
}

// controllers declares the store's HTTP surface. Paths are relative to the controller prefix.
var controllers = []controller{
	{name: "Auth", prefix: "/api/auth", actions: []action{
		{http.MethodPost, "/register", "Register", true},
		{http.MethodPost, "/login", "Login", true},
		{http.MethodPost, "/refresh-token", "RefreshToken", true},
		{http.MethodPost, "/google-login", "GoogleLogin", true},
	}},
	{name: "Cart", prefix: "/api/cart", actions: []action{
		{http.MethodGet, "", "GetCart", false},
		{http.MethodPost, "/items", "AddToCart", false},
		{http.MethodPut, "/items/{itemId}", "UpdateCartItem", false},
		{http.MethodDelete, "/items/{itemId}", "RemoveFromCart", false},
		{http.MethodDelete, "/clear", "ClearCart", false},
	}},
	{name: "Categories", prefix: "/api/categories", actions: []action{
		{http.MethodGet, "", "GetCategories", true},
		{http.MethodGet, "/{id}", "GetCategory", true},
		{http.MethodPost, "", "CreateCategory", false},
		{http.MethodPut, "/{id}", "UpdateCategory", false},
		{http.MethodDelete, "/{id}", "DeleteCategory", false},
	}},
	{name: "Comments", prefix: "/api/products/{productId}/comments", actions: []action{
		{http.MethodGet, "", "GetComments", false},
		{http.MethodPost, "", "CreateComment", false},
		{http.MethodGet, "/{id}", "GetComment", false},
		{http.MethodPut, "/{id}", "UpdateComment", false},
		{http.MethodDelete, "/{id}", "DeleteComment", false},
	}},
	{name: "Orders", prefix: "/api/orders", actions: []action{
		{http.MethodGet, "", "GetOrders", false},
		{http.MethodGet, "/{id}", "GetOrder", false},
		{http.MethodPost, "", "CreateOrder", false},
		{http.MethodPut, "/{id}/cancel", "CancelOrder", false},
		{http.MethodPut, "/{id}/status", "UpdateOrderStatus", false},
	}},
	{name: "Products", prefix: "/api/products", actions: []action{
		{http.MethodGet, "", "GetProducts", true},
		{http.MethodGet, "/{id}", "GetProduct", true},
		{http.MethodPost, "", "CreateProduct", false},
		{http.MethodPut, "/{id}", "UpdateProduct", false},
		{http.MethodDelete, "/{id}", "DeleteProduct", false},
	}},
	{name: "Admin", prefix: "/api/admin", actions: []action{
		{http.MethodGet, "/stats", "GetAdminStats", false},
		{http.MethodGet, "/orders", "GetAllOrders", false},
		{http.MethodGet, "/products", "GetAllProducts", false},
		{http.MethodGet, "/users", "GetAllUsers", false},
		{http.MethodPut, "/orders/{id}/status", "UpdateOrderStatus", false},
	}},
	{name: "Seller", prefix: "/api/seller", actions: []action{
		{http.MethodGet, "/store", "GetMyStore", false},
		{http.MethodPost, "/store", "CreateStore", false},
		{http.MethodPut, "/store/{storeId}", "UpdateStore", false},
		{http.MethodGet, "/products", "GetMyProducts", false},
		{http.MethodGet, "/products/{productId}", "GetMyProduct", false},
		{http.MethodPost, "/products", "CreateProduct", false},
		{http.MethodPut, "/products/{productId}", "UpdateProduct", false},
		{http.MethodDelete, "/products/{productId}", "DeleteProduct", false},
		{http.MethodGet, "/orders", "GetMyOrders", false},
		{http.MethodGet, "/orders/{orderId}", "GetMyOrder", false},
		{http.MethodPut, "/orders/{orderId}/status", "UpdateOrderStatus", false},
		{http.MethodGet, "/stats", "GetStats", false},
	}},
	{name: "Stores", prefix: "/api/stores", actions: []action{
		{http.MethodGet, "/{storeId}", "GetStore", false},
		{http.MethodGet, "/{storeId}/products", "GetStoreProducts", false},
	}},
	{name: "Users", prefix: "/api/users", actions: []action{
		{http.MethodGet, "/me", "GetCurrentUser", false},
		{http.MethodPut, "/me", "UpdateCurrentUser", false},
	}},
}

// Endpoints returns the storefront endpoints in declaration order
func Endpoints() []rbac.Endpoint {
	var endpoints []rbac.Endpoint
	for _, c := range controllers {
		for _, a := range c.actions {
			endpoints = append(endpoints, rbac.Endpoint{
				Method:     a.method,
				Path:       c.prefix + a.path,
				Name:       c.name + "." + a.name,
				Controller: c.name,
				Action:     a.name,
				Public:     a.public,
			})
		}
	}
	return endpoints
}

// RegisterRoutes adds every storefront endpoint to the route table
func RegisterRoutes(router rbac.RouteRegistrar) {
	for _, ep := range Endpoints() {
		router.Handle(ep, http.HandlerFunc(notImplemented))
	}
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotImplemented(w, MessageNotImplemented)
}

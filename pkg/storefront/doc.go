// Package storefront declares the store's HTTP surface: auth, cart, categories, comments,
// orders, products, admin, seller, stores and users.
//
// Only the shape of the surface lives here, so routes are discovered and authorized like any
// other. Every handler answers 501 Not Implemented.
package storefront

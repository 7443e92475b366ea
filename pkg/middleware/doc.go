// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// AuthMiddleware resolves the bearer token into an auth.Principal and stores it in the
// request context. It never rejects a request; the rbac interceptor decides what an
// anonymous or unidentified caller may reach.
//
//	authn := middleware.NewAuthMiddleware(auth.NewTokenVerifier(secret, issuer), logger)
//	router.Use(authn.Handler, interceptor.Handler)
//
// RateLimitMiddleware wraps any Limiter. Two are provided: RateLimiter, an in-process
// token bucket, and DistributedRateLimiter, a Redis fixed window shared by every instance.
// Authenticated callers are keyed by user id, anonymous ones by client IP.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.AdminMutationRateLimitConfig(30), "ratelimit:admin")
//	router.Handle("/routes/add-permission-to-role", middleware.NewRateLimitMiddleware(limiter, logger).Handler(h))
package middleware

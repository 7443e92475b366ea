// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Envelope
//
// Every JSON response uses the same envelope:
//
//	{"success": true, "message": "...", "data": ..., "total": 3}
//
// Helpers:
//
//	httputil.WriteList(w, "All API routes retrieved successfully", routes, len(routes))
//	httputil.WriteSuccess(w, "Permission added to role successfully", grant)
//	httputil.WriteBadRequest(w, "Invalid request data")
//	httputil.WriteForbidden(w, "Forbidden: Missing user ID")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//	)(router)
//
// RequestIDMiddleware stores both the request id and a request-scoped *logrus.Entry in the
// context; see observability.LoggerFromContext.
package httputil

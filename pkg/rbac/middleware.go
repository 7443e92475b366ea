package rbac

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/shopfront/pkg/auth"
	"github.com/platinummonkey/shopfront/pkg/httputil"
	"github.com/platinummonkey/shopfront/pkg/observability"
)

// Denial messages written by the interceptor
const (
	MessageUnauthorized    = "Unauthorized"
	MessageMissingIdentity = "Forbidden: Missing user ID"
	MessageForbidden       = "Forbidden: You don't have permission to access this resource"
)

// EndpointResolver returns the endpoint the router matched for a request
type EndpointResolver interface {
	Resolve(r *http.Request) (Endpoint, bool)
}

// Interceptor authorizes every routed request before its handler runs
type Interceptor struct {
	authorizer *Authorizer
	resolver   EndpointResolver
	logger     logrus.FieldLogger
}

// NewInterceptor creates a new authorization interceptor
func NewInterceptor(authorizer *Authorizer, resolver EndpointResolver, logger logrus.FieldLogger) *Interceptor {
	return &Interceptor{
		authorizer: authorizer,
		resolver:   resolver,
		logger:     logger,
	}
}

// Middleware must be installed after authentication and inside the router, so the matched
// route is known. It has the shape of mux.MiddlewareFunc.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, ok := i.resolver.Resolve(r)
		if !ok {
			// Without a route template there is nothing to match grants against
			i.logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Warn("Request reached authorization without a matched route")
			httputil.WriteForbidden(w, MessageForbidden)
			return
		}

		principal := auth.PrincipalFromContext(r.Context())
		decision := i.authorizer.Authorize(r.Context(), AccessRequest{
			Endpoint:  endpoint,
			Method:    r.Method,
			Principal: principal,
		})

		if decision.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		observability.LoggerFromContext(r.Context(), i.logger).WithFields(logrus.Fields{
			"method":  r.Method,
			"route":   endpoint.Path,
			"user_id": principal.UserID,
			"verdict": decision.Verdict.String(),
			"reason":  decision.Reason,
		}).Debug("Request denied")

		writeDenial(w, decision)
	})
}

func writeDenial(w http.ResponseWriter, decision Decision) {
	switch {
	case decision.Verdict == DenyUnauthenticated:
		httputil.WriteUnauthorized(w, MessageUnauthorized)
	case decision.Reason == ReasonMissingIdentity:
		httputil.WriteForbidden(w, MessageMissingIdentity)
	default:
		httputil.WriteForbidden(w, MessageForbidden)
	}
}

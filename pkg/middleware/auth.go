package middleware

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/shopfront/pkg/auth"
)

// TokenVerifier turns a bearer token into a principal
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// AuthMiddleware attaches the caller's principal to the request context.
// It never rejects: deciding what an anonymous caller may do is left to the authorization interceptor.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   logrus.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier TokenVerifier, logger logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.Anonymous

		token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
		if err == nil {
			principal, err = m.verifier.Verify(token)
		}
		if err != nil && !errors.Is(err, auth.ErrMissingToken) {
			m.logger.WithError(err).WithField("path", r.URL.Path).Debug("Rejected bearer token")
			principal = auth.Anonymous
		}

		ctx := auth.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the principal from a request
func GetPrincipal(r *http.Request) auth.Principal {
	return auth.PrincipalFromContext(r.Context())
}

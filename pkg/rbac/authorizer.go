package rbac

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/shopfront/pkg/auth"
)

const tracerName = "github.com/platinummonkey/shopfront/pkg/rbac"

// GrantLoader reads a caller's role and permission set
type GrantLoader interface {
	LoadGrants(ctx context.Context, userID int64) (*CallerGrants, error)
}

// DecisionRecorder receives authorization telemetry. *observability.Metrics satisfies it.
type DecisionRecorder interface {
	RecordAuthzDecision(verdict, reason string)
	ObserveAuthzLookup(d time.Duration, err error)
}

// AccessRequest is one request to authorize
type AccessRequest struct {
	Endpoint  Endpoint
	Method    string
	Principal auth.Principal
}

// Decision is the authorizer's answer
type Decision struct {
	Verdict Verdict
	Reason  Reason
	// Role is the caller's resolved role, nil when no lookup happened or it failed
	Role *Role
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Verdict == Allow
}

// Authorizer loads the caller's grants and runs Decide
type Authorizer struct {
	loader       GrantLoader
	recorder     DecisionRecorder
	logger       logrus.FieldLogger
	tracer       trace.Tracer
	queryTimeout time.Duration
}

// NewAuthorizer creates an authorizer. A zero queryTimeout leaves lookups bounded only by the request context.
func NewAuthorizer(loader GrantLoader, recorder DecisionRecorder, logger logrus.FieldLogger, queryTimeout time.Duration) *Authorizer {
	return &Authorizer{
		loader:       loader,
		recorder:     recorder,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		queryTimeout: queryTimeout,
	}
}

// Authorize decides whether the principal may call the endpoint. Lookup failures deny.
func (a *Authorizer) Authorize(ctx context.Context, req AccessRequest) Decision {
	ctx, span := a.tracer.Start(ctx, "rbac.Authorize", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Endpoint.Path),
	))
	defer span.End()

	decision := a.authorize(ctx, req, span)

	span.SetAttributes(
		attribute.String("authz.verdict", decision.Verdict.String()),
		attribute.String("authz.reason", string(decision.Reason)),
	)
	if a.recorder != nil {
		a.recorder.RecordAuthzDecision(decision.Verdict.String(), string(decision.Reason))
	}
	return decision
}

func (a *Authorizer) authorize(ctx context.Context, req AccessRequest, span trace.Span) Decision {
	in := DecisionInput{
		Public:        req.Endpoint.Public,
		Method:        req.Method,
		RouteTemplate: req.Endpoint.Path,
		Authenticated: req.Principal.Authenticated,
	}

	if verdict, reason, ok := decideWithoutGrants(in); ok {
		return Decision{Verdict: verdict, Reason: reason}
	}

	if req.Principal.UserID <= 0 {
		return Decision{Verdict: DenyForbidden, Reason: ReasonMissingIdentity}
	}
	span.SetAttributes(attribute.Int64("enduser.id", req.Principal.UserID))

	lookupCtx := ctx
	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	grants, err := a.loader.LoadGrants(lookupCtx, req.Principal.UserID)
	if a.recorder != nil {
		a.recorder.ObserveAuthzLookup(time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant lookup failed")
		a.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": req.Principal.UserID,
			"method":  req.Method,
			"route":   req.Endpoint.Path,
		}).Error("Failed to load grants, denying request")
		return Decision{Verdict: DenyForbidden, Reason: ReasonStoreError}
	}
	if grants == nil {
		a.logger.WithField("user_id", req.Principal.UserID).Warn("Grant lookup returned nothing, denying request")
		return Decision{Verdict: DenyForbidden, Reason: ReasonRoleMissing}
	}

	in.Role = grants.Role
	in.Permissions = grants.Permissions
	verdict, reason := DecideWithReason(in)
	return Decision{Verdict: verdict, Reason: reason, Role: grants.Role}
}

package rbac

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RouteSource enumerates the endpoints the HTTP layer serves
type RouteSource interface {
	Enumerate() ([]Endpoint, error)
}

// PermissionRegistry persists discovered endpoints
type PermissionRegistry interface {
	EnsurePermission(ctx context.Context, ep Endpoint) (int64, RegistrationOutcome, error)
}

// RegistrationRecorder counts registration outcomes. *observability.Metrics satisfies it.
type RegistrationRecorder interface {
	RecordRegistration(outcome string)
}

// RegistrationSummary totals one registration pass
type RegistrationSummary struct {
	Discovered  int
	Created     int
	Resurrected int
	Unchanged   int
}

// Registrar records every discovered endpoint as a permission
type Registrar struct {
	source   RouteSource
	registry PermissionRegistry
	recorder RegistrationRecorder
	logger   logrus.FieldLogger
	tracer   trace.Tracer
}

// NewRegistrar creates a new registrar
func NewRegistrar(source RouteSource, registry PermissionRegistry, recorder RegistrationRecorder, logger logrus.FieldLogger) *Registrar {
	return &Registrar{
		source:   source,
		registry: registry,
		recorder: recorder,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Register discovers endpoints and ensures each has a permission row. It is idempotent and
// safe to run from several instances at once; the first failure aborts the pass.
func (r *Registrar) Register(ctx context.Context) (*RegistrationSummary, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.Register")
	defer span.End()

	endpoints, err := r.source.Enumerate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route discovery failed")
		return nil, fmt.Errorf("failed to discover routes: %w", err)
	}

	summary := &RegistrationSummary{Discovered: len(endpoints)}
	for _, ep := range endpoints {
		_, outcome, err := r.registry.EnsurePermission(ctx, ep)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "registration failed")
			return nil, fmt.Errorf("failed to register %s: %w", ep.Key(), err)
		}

		switch outcome {
		case OutcomeCreated:
			summary.Created++
		case OutcomeResurrected:
			summary.Resurrected++
			r.logger.WithField("permission", ep.Key().String()).Warn("Resurrected retired permission; its previous grants were cleared")
		default:
			summary.Unchanged++
		}
		if r.recorder != nil {
			r.recorder.RecordRegistration(string(outcome))
		}
	}

	span.SetAttributes(
		attribute.Int("rbac.discovered", summary.Discovered),
		attribute.Int("rbac.created", summary.Created),
		attribute.Int("rbac.resurrected", summary.Resurrected),
	)
	r.logger.WithFields(logrus.Fields{
		"discovered":  summary.Discovered,
		"created":     summary.Created,
		"resurrected": summary.Resurrected,
		"unchanged":   summary.Unchanged,
	}).Info("Route permissions registered")

	return summary, nil
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the IAM service and the auth middleware.
const (
	AttrPrincipalID   = "principal.id"
	AttrPrincipalKind = "principal.kind"
	AttrRoleID        = "role.id"
	AttrRoleName      = "role.name"
	AttrTokenPurpose  = "token.purpose"
)

// StartSpan opens a span named op on the tracer for component, e.g.
//
//	ctx, span := telemetry.StartSpan(ctx, "salonapi/iam", "iam.CreateRole",
//	    attribute.String(telemetry.AttrRoleName, name))
//	defer span.End()
func StartSpan(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(component).Start(ctx, op, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed with err. A nil err is ignored so callers
// can defer it against a named return.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent attaches a domain event such as "login.locked" to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if len(attrs) == 0 {
		span.AddEvent(name)
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tenantforge"

// StartWebhookSpan starts a span for an inbound payment event.
func StartWebhookSpan(ctx context.Context, eventType, orderID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.payment",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("payment.order_id", orderID),
		),
	)
}

// StartProvisionSpan starts a span for tenant provisioning.
func StartProvisionSpan(ctx context.Context, orderID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenant.provision",
		trace.WithAttributes(attribute.String("payment.order_id", orderID)),
	)
}

// StartActivationSpan starts a span for account activation.
func StartActivationSpan(ctx context.Context, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "account.activate",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
}

// StartUpstreamSpan starts a client span for a call to an external capability.
func StartUpstreamSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

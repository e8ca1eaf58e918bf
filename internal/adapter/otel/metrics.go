package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tenantforge"

// Metrics holds all TenantForge metric instruments. A nil *Metrics records
// nothing, so services and tests can run without a meter provider.
type Metrics struct {
	IntentsCreated     metric.Int64Counter
	WebhookEvents      metric.Int64Counter
	SignatureFailures  metric.Int64Counter
	TenantsProvisioned metric.Int64Counter
	TokensIssued       metric.Int64Counter
	Activations        metric.Int64Counter
	MailSends          metric.Int64Counter
	UpstreamDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.IntentsCreated, err = meter.Int64Counter("tenantforge.payment_intents.created",
		metric.WithDescription("Number of payment intents opened upstream"))
	if err != nil {
		return nil, err
	}

	m.WebhookEvents, err = meter.Int64Counter("tenantforge.webhook.events",
		metric.WithDescription("Payment webhook events by outcome"))
	if err != nil {
		return nil, err
	}

	m.SignatureFailures, err = meter.Int64Counter("tenantforge.webhook.signature_failures",
		metric.WithDescription("Webhook deliveries rejected for a bad signature"))
	if err != nil {
		return nil, err
	}

	m.TenantsProvisioned, err = meter.Int64Counter("tenantforge.tenants.provisioned",
		metric.WithDescription("Number of tenants created from captured payments"))
	if err != nil {
		return nil, err
	}

	m.TokensIssued, err = meter.Int64Counter("tenantforge.activation_tokens.issued",
		metric.WithDescription("Number of activation tokens issued"))
	if err != nil {
		return nil, err
	}

	m.Activations, err = meter.Int64Counter("tenantforge.activations",
		metric.WithDescription("Account activations by result"))
	if err != nil {
		return nil, err
	}

	m.MailSends, err = meter.Int64Counter("tenantforge.mail.sends",
		metric.WithDescription("Activation mail deliveries by outcome"))
	if err != nil {
		return nil, err
	}

	m.UpstreamDuration, err = meter.Float64Histogram("tenantforge.upstream.duration_seconds",
		metric.WithDescription("Latency of payment processor calls in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func outcome(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}

// IntentCreated counts an opened payment intent.
func (m *Metrics) IntentCreated(ctx context.Context, plan string) {
	if m == nil {
		return
	}
	m.IntentsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", plan)))
}

// WebhookEvent counts a webhook delivery with its outcome.
func (m *Metrics) WebhookEvent(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.Add(ctx, 1, outcome(result))
}

// SignatureFailure counts a rejected webhook signature.
func (m *Metrics) SignatureFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.SignatureFailures.Add(ctx, 1)
}

// TenantProvisioned counts a created tenant.
func (m *Metrics) TenantProvisioned(ctx context.Context, plan string) {
	if m == nil {
		return
	}
	m.TenantsProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", plan)))
}

// TokenIssued counts an issued activation token.
func (m *Metrics) TokenIssued(ctx context.Context, typ string) {
	if m == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
}

// Activation counts an activation attempt by result.
func (m *Metrics) Activation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Activations.Add(ctx, 1, outcome(result))
}

// MailSend counts an activation mail delivery attempt by result.
func (m *Metrics) MailSend(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.MailSends.Add(ctx, 1, outcome(result))
}

// UpstreamCall records the latency of a payment processor call.
func (m *Metrics) UpstreamCall(ctx context.Context, op string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("op", op)))
}

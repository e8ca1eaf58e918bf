package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
)

const testWebhookSecret = "whsec_test"

var errTransient = errors.New("transient failure")

// testClock is a settable clock shared by every service in a harness.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	store       *mockStore
	gateway     *mockGateway
	mail        *mockMailer
	dedupe      *mockCache
	clock       *testClock
	tokens      *ActivationTokenService
	registrar   *PaymentRegistrar
	provisioner *TenantProvisioner
	verifier    *PaymentEventVerifier
	activator   *AccountActivator
	resender    *ActivationResender
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   newMockStore(),
		gateway: &mockGateway{},
		mail:    &mockMailer{},
		dedupe:  newMockCache(),
		clock:   &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	h.tokens = NewActivationTokenService(h.store, 7*24*time.Hour, nil)
	h.tokens.now = h.clock.Now

	h.registrar = NewPaymentRegistrar(h.gateway, h.store, &config.Payments{
		Currency:        "INR",
		UpstreamTimeout: time.Second,
	}, nil)
	h.registrar.now = h.clock.Now

	h.provisioner = NewTenantProvisioner(h.store, h.store, h.tokens, h.mail, 24*time.Hour, nil)
	h.provisioner.now = h.clock.Now

	h.verifier = NewPaymentEventVerifier(h.store, h.provisioner, h.dedupe,
		func() string { return testWebhookSecret }, time.Hour, nil)
	h.verifier.now = h.clock.Now

	h.activator = NewAccountActivator(h.tokens, h.store, h.store, h.store, 4, nil)
	h.activator.now = h.clock.Now

	h.resender = NewActivationResender(h.store, h.store, h.store, h.tokens, h.mail)
	return h
}

func eventBody(event, paymentID, orderID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":49900,"currency":"INR","status":"captured"}}}}`,
		event, paymentID, orderID))
}

func signed(body []byte) string {
	return payment.Sign(body, testWebhookSecret)
}

// intent opens an intent for the standard Acme Co order used across tests.
func (h *harness) intent(t *testing.T, name, email string) *payment.Intent {
	t.Helper()
	in, err := h.registrar.CreateIntent(t.Context(), payment.IntentRequest{
		TenantName:   name,
		AdminEmail:   email,
		Plan:         "standard",
		BillingCycle: "monthly",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	return in
}

// capture delivers a signed captured event for orderID.
func (h *harness) capture(t *testing.T, orderID string) EventOutcome {
	t.Helper()
	body := eventBody("payment.captured", "pay_"+orderID, orderID)
	out, err := h.verifier.Handle(t.Context(), body, signed(body))
	if err != nil {
		t.Fatalf("Handle captured: %v", err)
	}
	return out
}

package payment

import (
	"strings"
	"testing"
	"time"
)

func TestIntentRequest_Validate(t *testing.T) {
	valid := func() IntentRequest {
		return IntentRequest{TenantName: "Acme Co", AdminEmail: "a@x.com", Plan: "standard", BillingCycle: "monthly"}
	}

	tests := []struct {
		name    string
		mutate  func(r *IntentRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*IntentRequest) {}},
		{name: "blank name", mutate: func(r *IntentRequest) { r.TenantName = "   " }, wantErr: "tenantName is required"},
		{name: "missing email", mutate: func(r *IntentRequest) { r.AdminEmail = "" }, wantErr: "adminEmail is required"},
		{name: "bad email", mutate: func(r *IntentRequest) { r.AdminEmail = "nope" }, wantErr: "invalid adminEmail format"},
		{name: "missing plan", mutate: func(r *IntentRequest) { r.Plan = "" }, wantErr: "plan is required"},
		{name: "unknown plan", mutate: func(r *IntentRequest) { r.Plan = "gold" }, wantErr: "invalid plan: must be free, standard, or premium"},
		{name: "missing cycle", mutate: func(r *IntentRequest) { r.BillingCycle = "" }, wantErr: "billingCycle is required"},
		{name: "unknown cycle", mutate: func(r *IntentRequest) { r.BillingCycle = "weekly" }, wantErr: "invalid billingCycle: must be monthly or yearly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAuthorized, true},
		{StatusPending, StatusCaptured, true},
		{StatusAuthorized, StatusCaptured, true},
		{StatusCaptured, StatusAuthorized, false},
		{StatusCaptured, StatusCaptured, false},
		{StatusAuthorized, StatusAuthorized, false},
		{StatusFailed, StatusCaptured, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewReceipt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := NewReceipt(now)
	b := NewReceipt(now)

	if a == b {
		t.Fatalf("receipts collided: %s", a)
	}
	if !strings.HasPrefix(a, "rcpt_1772323200000_") {
		t.Fatalf("unexpected receipt prefix: %s", a)
	}
	if len(a) > 40 {
		t.Fatalf("receipt too long: %d", len(a))
	}
}

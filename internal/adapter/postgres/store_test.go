package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/billing"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return postgres.NewStore(pool)
}

func createPayment(t *testing.T, s *postgres.Store, email string) *payment.Record {
	t.Helper()
	r := &payment.Record{
		ID:       uuid.NewString(),
		OrderID:  "order_" + uuid.NewString()[:12],
		Receipt:  payment.NewReceipt(time.Now()),
		Plan:     billing.PlanStandard,
		Cycle:    billing.CycleMonthly,
		Amount:   99900,
		Currency: "INR",
		Status:   payment.StatusPending,
		Notes:    payment.Notes{TenantName: "Acme Co", AdminEmail: email},
	}
	if err := s.CreatePayment(context.Background(), r); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return r
}

func createTenant(t *testing.T, s *postgres.Store, orderID string) *tenant.Tenant {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	tn := &tenant.Tenant{
		ID:                uuid.NewString(),
		Name:              "Acme Co",
		Slug:              "acme-" + uuid.NewString()[:8],
		Plan:              billing.PlanStandard,
		Status:            tenant.StatusActive,
		Cycle:             billing.CycleMonthly,
		SubscriptionStart: now,
		SubscriptionEnd:   billing.CycleMonthly.SubscriptionEnd(now),
		OriginOrderID:     orderID,
	}
	if err := s.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tn
}

func uniqueEmail() string {
	return "admin-" + uuid.NewString()[:8] + "@example.com"
}

func TestPaymentLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	email := uniqueEmail()
	rec := createPayment(t, s, email)

	if err := s.CreatePayment(ctx, rec); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate order: expected ErrConflict, got %v", err)
	}

	at := time.Now()
	if err := s.UpdatePaymentStatus(ctx, rec.OrderID, payment.StatusUpdate{
		Status: payment.StatusCaptured, ExternalPaymentID: "pay_1", CompletedAt: at,
	}); err != nil {
		t.Fatalf("capture: %v", err)
	}
	// Status never moves backwards.
	err := s.UpdatePaymentStatus(ctx, rec.OrderID, payment.StatusUpdate{Status: payment.StatusAuthorized, CompletedAt: at})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("regression: expected ErrConflict, got %v", err)
	}

	got, err := s.FindCapturedPaymentByEmail(ctx, email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.Status != payment.StatusCaptured || got.ExternalPaymentID != "pay_1" || got.CompletedAt == nil {
		t.Fatalf("unexpected record: %+v", got)
	}

	unlinked, err := s.ListUnlinkedCapturedPayments(ctx, 1000)
	if err != nil {
		t.Fatalf("list unlinked: %v", err)
	}
	found := false
	for _, u := range unlinked {
		found = found || u.OrderID == rec.OrderID
	}
	if !found {
		t.Fatal("captured unlinked payment missing from sweep list")
	}

	tn := createTenant(t, s, rec.OrderID)
	if err := s.LinkPaymentTenant(ctx, rec.OrderID, tn.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	other := createTenant(t, s, "")
	if err := s.LinkPaymentTenant(ctx, rec.OrderID, other.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("relink: expected ErrConflict, got %v", err)
	}
	if err := s.LinkPaymentTenant(ctx, "order_missing", tn.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown order: expected ErrNotFound, got %v", err)
	}
}

func TestCreateTenantConstraints(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	rec := createPayment(t, s, uniqueEmail())
	tn := createTenant(t, s, rec.OrderID)

	dupSlug := *tn
	dupSlug.ID = uuid.NewString()
	dupSlug.OriginOrderID = ""
	if err := s.CreateTenant(ctx, &dupSlug); !errors.Is(err, domain.ErrSlugTaken) {
		t.Fatalf("slug clash: expected ErrSlugTaken, got %v", err)
	}

	dupOrigin := *tn
	dupOrigin.ID = uuid.NewString()
	dupOrigin.Slug = tn.Slug + "-x"
	if err := s.CreateTenant(ctx, &dupOrigin); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("origin clash: expected ErrConflict, got %v", err)
	}

	got, err := s.GetTenantByOriginOrder(ctx, rec.OrderID)
	if err != nil {
		t.Fatalf("by origin: %v", err)
	}
	if got.ID != tn.ID || !got.SubscriptionEnd.Equal(tn.SubscriptionEnd) {
		t.Fatalf("unexpected tenant: %+v", got)
	}
}

func TestConsumeTokenOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	tn := createTenant(t, s, "")
	email := uniqueEmail()

	value, err := activation.NewValue()
	if err != nil {
		t.Fatal(err)
	}
	tok := &activation.Token{
		Value:     value,
		Type:      activation.TypeSignup,
		Email:     email,
		TenantID:  tn.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		Metadata:  map[string]string{"plan": "standard"},
	}
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}
	pending, err := s.FindPendingToken(ctx, tn.ID, email, activation.TypeSignup, time.Now())
	if err != nil || pending.Value != tok.Value || pending.Metadata["plan"] != "standard" {
		t.Fatalf("pending token: %+v, %v", pending, err)
	}

	ids := make([]string, 8)
	for i := range ids {
		ident := &identity.Identity{
			ID: uuid.NewString(), Email: uniqueEmail(), FullName: "A", PasswordHash: "x", EmailConfirmed: true,
		}
		if err := s.CreateIdentity(ctx, ident); err != nil {
			t.Fatalf("create identity: %v", err)
		}
		ids[i] = ident.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := s.ConsumeToken(ctx, tok.Value, id, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, domain.ErrTokenAlreadyUsed):
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}

	if _, err := s.FindPendingToken(ctx, tn.ID, email, activation.TypeSignup, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("consumed token still pending: %v", err)
	}
	if err := s.ConsumeToken(ctx, "missing", ids[0], time.Now()); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("missing token: expected ErrTokenNotFound, got %v", err)
	}
}

func TestIdentityMembershipLedger(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	tn := createTenant(t, s, "")
	email := uniqueEmail()

	ident := &identity.Identity{ID: uuid.NewString(), Email: email, FullName: "Ada", PasswordHash: "h", EmailConfirmed: true}
	if err := s.CreateIdentity(ctx, ident); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	clash := *ident
	clash.ID = uuid.NewString()
	if err := s.CreateIdentity(ctx, &clash); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("email clash: expected ErrConflict, got %v", err)
	}

	m := &membership.Membership{
		ID: uuid.NewString(), TenantID: tn.ID, IdentityID: ident.ID,
		Role: membership.RoleAdmin, Status: membership.StatusActive,
	}
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	ledger := membership.InitialLedger(tn.ID, tn.Plan)
	if err := s.SeedUsageLedger(ctx, &ledger); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SeedUsageLedger(ctx, &ledger); err != nil {
		t.Fatalf("reseed must be idempotent: %v", err)
	}

	got, err := s.GetActiveMembership(ctx, ident.ID)
	if err != nil || got.TenantID != tn.ID || got.Role != membership.RoleAdmin {
		t.Fatalf("active membership: %+v, %v", got, err)
	}
	l, err := s.GetUsageLedger(ctx, tn.ID)
	if err != nil || l.MemberCount != 1 {
		t.Fatalf("ledger: %+v, %v", l, err)
	}

	if err := s.DeleteIdentity(ctx, ident.ID); err != nil {
		t.Fatalf("delete identity: %v", err)
	}
	n, err := s.CountMemberships(ctx, tn.ID)
	if err != nil || n != 0 {
		t.Fatalf("memberships after delete = %d, %v; want cascade", n, err)
	}
	if _, err := s.GetActiveMembership(ctx, ident.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrationStatus(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		t.Fatal(err)
	}
	st, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st) == 0 || !st[0].Applied || st[0].Version != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/mailer"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory database.Store. It enforces the same uniqueness
// rules as the PostgreSQL schema.
type mockStore struct {
	mu          sync.Mutex
	payments    map[string]payment.Record
	tenants     map[string]tenant.Tenant
	tokens      map[string]activation.Token
	identities  map[string]identity.Identity
	memberships []membership.Membership
	ledgers     map[string]membership.UsageLedger

	getPaymentCalls int

	// Error hooks. Set these to inject failures.
	createPaymentErr    error
	linkErr             error
	createMembershipErr error
	seedLedgerErr       error
	deleteIdentityErr   error
	createTokenErr      error
	consumeTokenErr     error
	membershipLookupErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		payments:   make(map[string]payment.Record),
		tenants:    make(map[string]tenant.Tenant),
		tokens:     make(map[string]activation.Token),
		identities: make(map[string]identity.Identity),
		ledgers:    make(map[string]membership.UsageLedger),
	}
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

// --- payments ---

func (m *mockStore) CreatePayment(_ context.Context, r *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createPaymentErr != nil {
		return m.createPaymentErr
	}
	if _, ok := m.payments[r.OrderID]; ok {
		return domain.ErrConflict
	}
	m.payments[r.OrderID] = *r
	return nil
}

func (m *mockStore) GetPaymentByOrderID(_ context.Context, orderID string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getPaymentCalls++
	r, ok := m.payments[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (m *mockStore) UpdatePaymentStatus(_ context.Context, orderID string, u payment.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.payments[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = u.Status
	r.ExternalPaymentID = u.ExternalPaymentID
	at := u.CompletedAt
	r.CompletedAt = &at
	m.payments[orderID] = r
	return nil
}

func (m *mockStore) LinkPaymentTenant(_ context.Context, orderID, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return m.linkErr
	}
	r, ok := m.payments[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.TenantID != "" {
		return domain.ErrConflict
	}
	for _, other := range m.payments {
		if other.TenantID == tenantID {
			return domain.ErrConflict
		}
	}
	r.TenantID = tenantID
	m.payments[orderID] = r
	return nil
}

func (m *mockStore) FindCapturedPaymentByEmail(_ context.Context, email string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *payment.Record
	for _, r := range m.payments {
		if r.Status != payment.StatusCaptured || activation.NormalizeEmail(r.Notes.AdminEmail) != email {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (m *mockStore) ListUnlinkedCapturedPayments(_ context.Context, limit int) ([]payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.Record
	for _, r := range m.payments {
		if r.Status == payment.StatusCaptured && r.TenantID == "" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- tenants ---

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if t.OriginOrderID != "" && existing.OriginOrderID == t.OriginOrderID {
			return domain.ErrConflict
		}
	}
	for _, existing := range m.tenants {
		if existing.Slug == t.Slug {
			return domain.ErrSlugTaken
		}
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *mockStore) GetTenantByOriginOrder(_ context.Context, orderID string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.OriginOrderID == orderID {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// --- tokens ---

func (m *mockStore) CreateToken(_ context.Context, t *activation.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTokenErr != nil {
		return m.createTokenErr
	}
	m.tokens[t.Value] = *t
	return nil
}

func (m *mockStore) GetToken(_ context.Context, value string, typ activation.Type) (*activation.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[value]
	if !ok || t.Type != typ {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *mockStore) FindPendingToken(_ context.Context, tenantID, email string, typ activation.Type, now time.Time) (*activation.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TenantID == tenantID && t.Email == email && t.Type == typ && t.ConsumedAt == nil && t.ExpiresAt.After(now) {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ConsumeToken(_ context.Context, value, identityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeTokenErr != nil {
		return m.consumeTokenErr
	}
	t, ok := m.tokens[value]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if t.ConsumedAt != nil {
		return domain.ErrTokenAlreadyUsed
	}
	t.ConsumedAt = &at
	t.ConsumedBy = identityID
	m.tokens[value] = t
	return nil
}

// --- identities ---

func (m *mockStore) CreateIdentity(_ context.Context, i *identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if existing.Email == i.Email {
			return domain.ErrConflict
		}
	}
	m.identities[i.ID] = *i
	return nil
}

func (m *mockStore) GetIdentity(_ context.Context, id string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (m *mockStore) GetIdentityByEmail(_ context.Context, email string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.Email == email {
			return &i, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) DeleteIdentity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteIdentityErr != nil {
		return m.deleteIdentityErr
	}
	if _, ok := m.identities[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.identities, id)
	kept := m.memberships[:0]
	for _, ms := range m.memberships {
		if ms.IdentityID != id {
			kept = append(kept, ms)
		}
	}
	m.memberships = kept
	return nil
}

// --- memberships ---

func (m *mockStore) CreateMembership(_ context.Context, ms *membership.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createMembershipErr != nil {
		return m.createMembershipErr
	}
	for _, existing := range m.memberships {
		if existing.TenantID == ms.TenantID && existing.IdentityID == ms.IdentityID {
			return domain.ErrConflict
		}
	}
	m.memberships = append(m.memberships, *ms)
	return nil
}

func (m *mockStore) GetActiveMembership(_ context.Context, identityID string) (*membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.membershipLookupErr != nil {
		return nil, m.membershipLookupErr
	}
	for _, ms := range m.memberships {
		if ms.IdentityID == identityID && ms.Status == membership.StatusActive {
			return &ms, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CountMemberships(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ms := range m.memberships {
		if ms.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) SeedUsageLedger(_ context.Context, l *membership.UsageLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seedLedgerErr != nil {
		return m.seedLedgerErr
	}
	m.ledgers[l.TenantID] = *l
	return nil
}

func (m *mockStore) GetUsageLedger(_ context.Context, tenantID string) (*membership.UsageLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

// --- collaborators ---

type mockGateway struct {
	mu       sync.Mutex
	err      error
	block    bool
	requests []payment.OrderRequest
	next     int
}

func (g *mockGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.next++
	n := g.next
	block, err := g.block, g.err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &payment.Order{
		ID:       "order_" + string(rune('A'+n-1)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
	}, nil
}

func (g *mockGateway) KeyID() string { return "rzp_test_key" }

type mockMailer struct {
	mu       sync.Mutex
	payloads []messagequeue.ActivationMailPayload
	err      error
}

func (m *mockMailer) EnqueueActivation(_ context.Context, p messagequeue.ActivationMailPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, p)
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

type mockSender struct {
	mu    sync.Mutex
	sent  []mailer.Message
	fails int
	err   error
}

func (s *mockSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.fails > 0 {
		s.fails--
		return errTransient
	}
	s.sent = append(s.sent, msg)
	return nil
}

type mockQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		delete(q.handlers, subject)
		q.mu.Unlock()
	}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/adapter"
	"rental-payments/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- In-memory PendingPaymentRepository ----

// MockPaymentRepo mimics the conditional-update semantics of the Postgres
// repo: MarkCompleted and MarkFulfilled only succeed when the row is still in
// the prior state at write time.
type MockPaymentRepo struct {
	mu    sync.Mutex
	store map[string]*model.PendingPayment // by order id

	SaveFunc          func(ctx context.Context, tx repository.Tx, p *model.PendingPayment) error
	MarkFulfilledFunc func(ctx context.Context, tx repository.Tx, orderID string, receipt *model.FulfillmentReceipt) (bool, error)
}

var _ repository.PendingPaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{store: make(map[string]*model.PendingPayment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PendingPayment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.OrderID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) (*model.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.OrderTrackingID != nil && *p.OrderTrackingID == trackingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) AttachTrackingID(ctx context.Context, tx repository.Tx, orderID, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	p.OrderTrackingID = &trackingID
	return nil
}

func (m *MockPaymentRepo) MarkCompleted(ctx context.Context, tx repository.Tx, orderID string, snap *model.GatewayStatusSnapshot, trackingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[orderID]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	now := time.Now()
	p.Status = model.PaymentStatusCompleted
	p.GatewayStatus = snap
	p.CompletedAt = &now
	if p.OrderTrackingID == nil && trackingID != "" {
		p.OrderTrackingID = &trackingID
	}
	return true, nil
}

func (m *MockPaymentRepo) MarkFulfilled(ctx context.Context, tx repository.Tx, orderID string, receipt *model.FulfillmentReceipt) (bool, error) {
	if m.MarkFulfilledFunc != nil {
		return m.MarkFulfilledFunc(ctx, tx, orderID, receipt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[orderID]
	if !ok || p.Status != model.PaymentStatusCompleted || p.FulfillmentStatus == model.FulfillmentStatusFulfilled {
		return false, nil
	}
	now := time.Now()
	p.FulfillmentStatus = model.FulfillmentStatusFulfilled
	p.Receipt = receipt
	p.FulfilledAt = &now
	return true, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PendingPayment
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ---- In-memory SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription // by subscription id

	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindCurrent(ctx context.Context, tx repository.Tx, subjectID string, kind model.SubjectKind) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur *model.Subscription
	for _, s := range m.subs {
		if s.SubjectID != subjectID || s.SubjectKind != kind {
			continue
		}
		if cur == nil || s.ExpiresAt.After(cur.ExpiresAt) {
			cur = s
		}
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

func (m *MockSubscriptionRepo) All() []*model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

func (m *MockSubscriptionRepo) snapshot() map[string]model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]model.Subscription, len(m.subs))
	for k, v := range m.subs {
		snap[k] = *v
	}
	return snap
}

func (m *MockSubscriptionRepo) restore(snap map[string]model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[string]*model.Subscription, len(snap))
	for k, v := range snap {
		cp := v
		m.subs[k] = &cp
	}
}

// ---- In-memory CreditRepository ----

type MockCreditRepo struct {
	mu       sync.Mutex
	balances map[string]int64

	AddCreditsFunc func(ctx context.Context, tx repository.Tx, subjectID string, n int64) (int64, error)
}

var _ repository.CreditRepository = (*MockCreditRepo)(nil)

func NewMockCreditRepo() *MockCreditRepo {
	return &MockCreditRepo{balances: make(map[string]int64)}
}

func (m *MockCreditRepo) AddCredits(ctx context.Context, tx repository.Tx, subjectID string, n int64) (int64, error) {
	if m.AddCreditsFunc != nil {
		return m.AddCreditsFunc(ctx, tx, subjectID, n)
	}
	if n <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[subjectID] += n
	return m.balances[subjectID], nil
}

func (m *MockCreditRepo) Balance(ctx context.Context, tx repository.Tx, subjectID string) (*model.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[subjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.CreditBalance{SubjectID: subjectID, Credits: b, UpdatedAt: time.Now()}, nil
}

func (m *MockCreditRepo) snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]int64, len(m.balances))
	for k, v := range m.balances {
		snap[k] = v
	}
	return snap
}

func (m *MockCreditRepo) restore(snap map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = make(map[string]int64, len(snap))
	for k, v := range snap {
		m.balances[k] = v
	}
}

// ---- TransactionManager ----

// MockTxManager runs the function inline. When Subs/Credits are set it
// mimics rollback by restoring their state whenever the function errors,
// matching what the real transaction does to an already-performed grant.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	Subs    *MockSubscriptionRepo
	Credits *MockCreditRepo
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	var subSnap map[string]model.Subscription
	var credSnap map[string]int64
	if m.Subs != nil {
		subSnap = m.Subs.snapshot()
	}
	if m.Credits != nil {
		credSnap = m.Credits.snapshot()
	}
	err := fn(ctx, nil)
	if err != nil {
		if m.Subs != nil {
			m.Subs.restore(subSnap)
		}
		if m.Credits != nil {
			m.Credits.restore(credSnap)
		}
	}
	return err
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu    sync.Mutex
	calls int

	StatusFunc func(ctx context.Context, trackingID string) (*model.GatewayStatusSnapshot, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) TransactionStatus(ctx context.Context, trackingID string) (*model.GatewayStatusSnapshot, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.StatusFunc != nil {
		return g.StatusFunc(ctx, trackingID)
	}
	// Default answer: completed, with the amount creditMetadata seeds, so
	// subtests that don't script StatusFunc pass the amount guard.
	return &model.GatewayStatusSnapshot{
		StatusCode:       model.GatewayCodeCompleted,
		Amount:           500,
		PaymentMethod:    "MPESA",
		ConfirmationCode: "CONF-OK",
	}, nil
}

func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

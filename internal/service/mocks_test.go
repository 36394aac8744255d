package service

import (
	"context"
	"sync"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
)

// recordingNotifier keeps every event it is handed
type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.SaleEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event *domain.SaleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) kinds() []domain.SaleEventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.SaleEventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func (n *recordingNotifier) count(kind domain.SaleEventKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

// MockBackend is a payment.Backend with function fields
type MockBackend struct {
	MethodValue  domain.PaymentMethod
	ValidateFunc func(req *payment.Request) error
	InitiateFunc func(ctx context.Context, req *payment.Request) (*payment.Result, error)

	mu    sync.Mutex
	calls int
}

func (m *MockBackend) Method() domain.PaymentMethod {
	return m.MethodValue
}

func (m *MockBackend) Validate(req *payment.Request) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(req)
	}
	return nil
}

func (m *MockBackend) Initiate(ctx context.Context, req *payment.Request) (*payment.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return &payment.Result{Status: domain.PaymentStatusPending}, nil
}

func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubProcessor approves unless told otherwise
type stubProcessor struct {
	decline bool
}

func (p *stubProcessor) Name() string { return "stub" }

func (p *stubProcessor) Authorize(ctx context.Context, req *payment.AuthorizationRequest) (*payment.Authorization, error) {
	if p.decline {
		return &payment.Authorization{Approved: false, DeclineReason: "insufficient_funds", DeclineCode: "insufficient_funds"}, nil
	}
	return &payment.Authorization{Approved: true, AuthorizationCode: "000123", ProcessorRef: "ref"}, nil
}

// flakySales loses the first casLosses compare-and-swaps and can fail Create
type flakySales struct {
	repository.SaleRepository
	mu        sync.Mutex
	casLosses int
	casCalls  int
	createErr error
}

func (f *flakySales) Create(ctx context.Context, sale *domain.Sale) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.SaleRepository.Create(ctx, sale)
}

func (f *flakySales) CompareAndSwapState(ctx context.Context, code string, expected, next domain.SaleState) (bool, error) {
	f.mu.Lock()
	f.casCalls++
	lose := f.casLosses > 0
	if lose {
		f.casLosses--
	}
	f.mu.Unlock()
	if lose {
		return false, nil
	}
	return f.SaleRepository.CompareAndSwapState(ctx, code, expected, next)
}

// failingLedger fails the chosen operations and delegates the rest
type failingLedger struct {
	*repository.MemoryInventoryLedger
	markSoldErr error
	releaseErr  error
	releases    int
	mu          sync.Mutex
}

func (l *failingLedger) MarkSold(ctx context.Context, id, code string, qty int) error {
	if l.markSoldErr != nil {
		return l.markSoldErr
	}
	return l.MemoryInventoryLedger.MarkSold(ctx, id, code, qty)
}

func (l *failingLedger) Release(ctx context.Context, id, code string, qty int) (int, error) {
	l.mu.Lock()
	l.releases++
	l.mu.Unlock()
	if l.releaseErr != nil {
		return 0, l.releaseErr
	}
	return l.MemoryInventoryLedger.Release(ctx, id, code, qty)
}

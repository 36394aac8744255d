package handler

import (
	"context"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
)

// MockPurchaseService is a mock implementation of PurchaseService for testing
type MockPurchaseService struct {
	PurchaseFunc func(ctx context.Context, req *service.PurchaseRequest) (*domain.Sale, error)
	GetSaleFunc  func(ctx context.Context, code string) (*domain.Sale, error)
}

func (m *MockPurchaseService) Purchase(ctx context.Context, req *service.PurchaseRequest) (*domain.Sale, error) {
	if m.PurchaseFunc != nil {
		return m.PurchaseFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockPurchaseService) GetSale(ctx context.Context, code string) (*domain.Sale, error) {
	if m.GetSaleFunc != nil {
		return m.GetSaleFunc(ctx, code)
	}
	return nil, domain.ErrSaleNotFound
}

// MockTransitionService is a mock implementation of TransitionService for testing
type MockTransitionService struct {
	TransitionFunc func(ctx context.Context, code string, target domain.PaymentStatus) (*domain.Sale, error)
	CancelFunc     func(ctx context.Context, code string) (*domain.Sale, error)
	RemindFunc     func(ctx context.Context, code string) (bool, error)
}

func (m *MockTransitionService) Transition(ctx context.Context, code string, target domain.PaymentStatus) (*domain.Sale, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, code, target)
	}
	return nil, domain.ErrSaleNotFound
}

func (m *MockTransitionService) Cancel(ctx context.Context, code string) (*domain.Sale, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, code)
	}
	return nil, domain.ErrSaleNotFound
}

func (m *MockTransitionService) Remind(ctx context.Context, code string) (bool, error) {
	if m.RemindFunc != nil {
		return m.RemindFunc(ctx, code)
	}
	return false, nil
}

// MockTicketTypeService is a mock implementation of TicketTypeService for testing
type MockTicketTypeService struct {
	CreateFunc      func(ctx context.Context, tt *domain.TicketType) (*domain.TicketType, error)
	GetFunc         func(ctx context.Context, id string) (*domain.TicketType, error)
	ListByEventFunc func(ctx context.Context, eventID string) ([]*domain.TicketType, error)
	UpdateFunc      func(ctx context.Context, id string, update *service.TicketTypeUpdate) (*domain.TicketType, error)
	DeleteFunc      func(ctx context.Context, id string) error
}

func (m *MockTicketTypeService) Create(ctx context.Context, tt *domain.TicketType) (*domain.TicketType, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tt)
	}
	return tt, nil
}

func (m *MockTicketTypeService) Get(ctx context.Context, id string) (*domain.TicketType, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.ErrTicketTypeNotFound
}

func (m *MockTicketTypeService) ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	if m.ListByEventFunc != nil {
		return m.ListByEventFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *MockTicketTypeService) Update(ctx context.Context, id string, update *service.TicketTypeUpdate) (*domain.TicketType, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, update)
	}
	return nil, domain.ErrTicketTypeNotFound
}

func (m *MockTicketTypeService) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

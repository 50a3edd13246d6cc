package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/cache"
	"ScrapSettle/internal/models"
	"ScrapSettle/internal/reconcile"

	"github.com/google/uuid"
)

var (
	ErrBelowMinimum = errors.New("estimated amount below minimum")
	ErrBadTarget    = errors.New("unsupported fulfillment target")
)

type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// Service covers the booking surface around the engine: intake, reads,
// unpaid cancels and fulfillment moves. All mutations delegate to the
// engine; this package never writes state itself.
type Service struct {
	Store     Store
	Engine    *reconcile.Engine
	Cache     *cache.OrderCache
	MinAmount int64
	Currency  string
}

func (s *Service) Create(ctx context.Context, identity auth.Identity, estimatedAmount int64) (*models.Order, error) {
	if identity.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if estimatedAmount < s.MinAmount {
		return nil, ErrBelowMinimum
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:         uuid.NewString(),
		UserID:          identity.UserID,
		Status:          models.OrderPending,
		PaymentStatus:   models.OrderUnpaid,
		EstimatedAmount: estimatedAmount,
		Currency:        s.Currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, identity auth.Identity, orderID string) (*models.Order, error) {
	if cached, ok := s.Cache.Get(ctx, orderID); ok {
		if err := s.authorize(identity, cached); err != nil {
			return nil, err
		}
		return cached, nil
	}

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(identity, order); err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, order)
	return order, nil
}

// Cancel is the unpaid path only. Orders with settled money go through the
// refund flow, which cancels as part of the refund transition.
func (s *Service) Cancel(ctx context.Context, identity auth.Identity, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(identity, order); err != nil {
		return nil, err
	}

	updated, err := s.Engine.ApplyOrderTransition(ctx, identity, orderID, models.OrderCancelled)
	if err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, orderID)
	return updated, nil
}

// Advance moves fulfillment forward. Operator only.
func (s *Service) Advance(ctx context.Context, identity auth.Identity, orderID string, target models.OrderStatus) (*models.Order, error) {
	if !identity.IsOperator() {
		return nil, auth.ErrForbidden
	}
	if target != models.OrderInProgress && target != models.OrderCompleted {
		return nil, fmt.Errorf("%w: %s", ErrBadTarget, target)
	}

	updated, err := s.Engine.ApplyOrderTransition(ctx, identity, orderID, target)
	if err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, orderID)
	return updated, nil
}

func (s *Service) authorize(identity auth.Identity, order *models.Order) error {
	if order.UserID == identity.UserID || identity.IsOperator() {
		return nil
	}
	return auth.ErrForbidden
}

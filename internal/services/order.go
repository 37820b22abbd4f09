package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

var (
	ErrEmptyCart       = apperr.New(apperr.CodeInvalidArgument, "order has no items")
	ErrBadQuantity     = apperr.New(apperr.CodeInvalidArgument, "quantity must be positive")
	ErrUnknownProduct  = apperr.New(apperr.CodeInvalidArgument, "unknown or inactive product")
	ErrProfileRequired = apperr.New(apperr.CodeFailedPrecondition, "register a business profile before ordering")
)

// CartLine is one requested product.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderService places and lists customer orders.
type OrderService struct {
	store    repository.Store
	notifier Notifier
	logger   *zap.Logger
}

// NewOrderService creates an OrderService. notifier may be nil.
func NewOrderService(store repository.Store, notifier Notifier, logger *zap.Logger) *OrderService {
	return &OrderService{store: store, notifier: notifier, logger: logger.Named("orders")}
}

// Place creates a pending, unassigned order for uid from catalog prices and the
// caller's saved profile. Repeated product lines are merged.
func (s *OrderService) Place(ctx context.Context, uid string, lines []CartLine) (*models.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	profile, err := s.store.Profiles.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileRequired
		}
		return nil, err
	}

	quantities := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrBadQuantity, line.ProductID)
		}
		if _, ok := quantities[line.ProductID]; !ok {
			ids = append(ids, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	products, err := s.store.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UID:                uid,
		RegistrationNumber: profile.RegistrationNumber,
		BusinessName:       profile.BusinessName,
		Representative:     profile.Representative,
		Address:            profile.Address,
		Phone:              profile.Phone,
		Status:             models.OrderStatusPending,
		DeliveryVehicle:    nil,
		DeliverySequence:   0,
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
		}
		item := models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Unit:        p.Unit,
			Quantity:    quantities[id],
		}
		order.Items = append(order.Items, item)
		order.TotalItems += item.Quantity
		order.TotalPrice += item.LineTotal()
	}

	if err := s.store.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("order placed", zap.String("id", order.ID), zap.String("uid", uid), zap.Int64("total", order.TotalPrice))

	if s.notifier != nil {
		placed := *order
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.notifier.NotifyNewOrder(ctx, &placed); err != nil {
				s.logger.Warn("new order notification failed", zap.String("id", placed.ID), zap.Error(err))
			}
		}()
	}
	return order, nil
}

// ListMine returns uid's orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, uid string) ([]models.Order, error) {
	return s.store.Orders.List(ctx, repository.OrderFilter{UID: uid})
}

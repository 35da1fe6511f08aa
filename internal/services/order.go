package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/models"
	repository "github.com/rafaelmds/storefront-platform/internal/repositories"
)

// OrderService reads finalized orders. Creation goes through
// CartService.FinalizeOrder; orders are immutable once created.
type OrderService struct {
	orderRepo repository.OrderRepository
}

func NewOrderService(orderRepo repository.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo}
}

func (s *OrderService) GetOrderById(ctx context.Context, customerID, id uuid.UUID) (*models.Order, error) {

	order, err := s.orderRepo.GetOrderById(ctx, id)
	if err != nil {
		return nil, errors.NotFoundError("Order not found").WithError(err)
	}

	// shoppers only see their own orders
	if order.CustomerID != customerID {
		return nil, errors.NotFoundError("Order not found")
	}

	return order, nil
}

func (s *OrderService) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, page, size int) ([]models.Order, int, error) {

	if page < 1 {
		page = 1
	}

	if size < 1 || size > 10 {
		size = 10
	}

	orders, total, err := s.orderRepo.ListOrdersByCustomer(ctx, customerID, page, size)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to fetch orders").WithError(err)
	}

	return orders, total, nil
}

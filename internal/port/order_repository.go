package port

//go:generate mockgen -source=order_repository.go -destination=mocks/order_repository_mock.go -package=mocks

import (
	"context"

	"github.com/rl1809/fitfast/internal/core/domain"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns domain.ErrOrderNotFound when the order does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// TransitionOrder moves an order to status `to` only if its current status
	// is one of `from`. Returns false when the guard did not hold.
	TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (bool, error)
}

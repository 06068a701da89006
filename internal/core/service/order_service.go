package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/core/ledger"
	"github.com/rl1809/fitfast/internal/platform/metrics"
	"github.com/rl1809/fitfast/internal/port"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("empty cart")
	ErrOrderNotEligible  = errors.New("order is not eligible for this transition")
)

// OutOfStockError names the line that could not be reserved.
type OutOfStockError struct {
	ItemID    string
	Color     string
	Size      string
	Requested int
}

func (e *OutOfStockError) Error() string {
	switch {
	case e.Color == "" && e.Size == "":
		return fmt.Sprintf("item %s is out of stock (requested %d)", e.ItemID, e.Requested)
	case e.Size == "":
		return fmt.Sprintf("item %s in %s is out of stock (requested %d)", e.ItemID, e.Color, e.Requested)
	}
	return fmt.Sprintf("item %s in %s / %s is out of stock (requested %d)", e.ItemID, e.Color, e.Size, e.Requested)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type OrderService struct {
	stock      port.StockStore
	cache      port.CacheRepository
	orders     port.OrderRepository
	orderQueue chan domain.Order
	logger     *zap.Logger
	metrics    *metrics.Metrics

	persistTimeout time.Duration
}

const defaultPersistTimeout = 5 * time.Second

type Option func(*OrderService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *OrderService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

// WithPersistTimeout bounds each order save, and the stock release that
// follows a failed save.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *OrderService) { s.persistTimeout = d }
}

func NewOrderService(stock port.StockStore, cache port.CacheRepository, orders port.OrderRepository, queueSize int, opts ...Option) *OrderService {
	s := &OrderService{
		stock:      stock,
		cache:      cache,
		orders:     orders,
		orderQueue: make(chan domain.Order, queueSize),
		logger:     zap.NewNop(),

		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the stock ledger of one item, sharing the service's store,
// logger and metrics.
func (s *OrderService) Ledger(itemID string) *ledger.Ledger {
	return ledger.New(s.stock, itemID, ledger.WithLogger(s.logger), ledger.WithMetrics(s.metrics))
}

// Purchase reserves stock for a single line and queues the order for
// persistence.
func (s *OrderService) Purchase(ctx context.Context, requestID, userID, itemID, color, size string, quantity int) (*domain.Order, error) {
	orders, err := s.Checkout(ctx, requestID, userID, []domain.OrderLine{{
		ItemID:   itemID,
		Color:    color,
		Size:     size,
		Quantity: quantity,
	}})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// Checkout reserves every line or none. On the first line that cannot be
// reserved, the lines already taken are released and an *OutOfStockError is
// returned.
func (s *OrderService) Checkout(ctx context.Context, requestID, userID string, lines []domain.OrderLine) ([]domain.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, line.Quantity)
		}
	}

	idempotencyKey := "order:" + requestID
	ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	orders, err := s.reserveAll(ctx, requestID, userID, lines)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotency(ctx, idempotencyKey); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key",
				zap.String("request_id", requestID), zap.Error(releaseErr))
		}
		return nil, err
	}

	for _, order := range orders {
		s.orderQueue <- order
	}
	return orders, nil
}

func (s *OrderService) reserveAll(ctx context.Context, requestID, userID string, lines []domain.OrderLine) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(lines))

	for _, line := range lines {
		model, ok, err := s.Ledger(line.ItemID).Reserve(ctx, line.Color, line.Size, line.Quantity)
		if ok {
			// kept even when err != nil: the stock was taken and must be released
			orders = append(orders, s.newOrder(requestID, userID, line, model))
		}
		if err == nil && !ok {
			err = &OutOfStockError{ItemID: line.ItemID, Color: line.Color, Size: line.Size, Requested: line.Quantity}
		}
		if err != nil {
			s.releaseAll(ctx, orders)
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderService) releaseAll(ctx context.Context, orders []domain.Order) {
	for _, order := range orders {
		if err := s.release(ctx, order); err != nil {
			s.logger.Error("CRITICAL: failed to release reserved stock",
				zap.String("item_id", order.ItemID),
				zap.String("color", order.Color),
				zap.String("size", string(order.Size)),
				zap.Int("quantity", order.Quantity),
				zap.Error(err))
		}
	}
}

func (s *OrderService) release(ctx context.Context, order domain.Order) error {
	return s.Ledger(order.ItemID).Release(ctx, order.StockModel, order.Color, string(order.Size), order.Quantity)
}

func (s *OrderService) newOrder(requestID, userID string, line domain.OrderLine, model domain.StockModel) domain.Order {
	now := time.Now()
	order := domain.Order{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		UserID:     userID,
		ItemID:     line.ItemID,
		Quantity:   line.Quantity,
		StockModel: model,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// store the normalized key so Release hits the same entry
	switch model {
	case domain.StockModelVariant:
		if key, err := domain.NewVariantKey(line.Color, line.Size); err == nil {
			order.Color, order.Size = key.Color, key.Size
		}
	case domain.StockModelLegacy:
		order.Color, _ = domain.NormalizeColor(line.Color)
	}
	return order
}

// Cancel moves a pending or confirmed order to cancelled and returns its
// stock. Concurrent cancels release the stock once.
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	return s.transitionAndRelease(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed}, domain.OrderStatusCancelled)
}

// Return moves a confirmed order to returned and restocks it.
func (s *OrderService) Return(ctx context.Context, orderID string) error {
	return s.transitionAndRelease(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusConfirmed}, domain.OrderStatusReturned)
}

// transitionAndRelease moves the order from the status it was loaded with, so
// a failed restock can put exactly that status back and the call can be
// retried.
func (s *OrderService) transitionAndRelease(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	original := order.Status
	if !slices.Contains(from, original) {
		return fmt.Errorf("%w: %s is %s", ErrOrderNotEligible, orderID, original)
	}

	ok, err := s.orders.TransitionOrder(ctx, orderID, []domain.OrderStatus{original}, to)
	if err != nil {
		return fmt.Errorf("transition order %s: %w", orderID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrOrderNotEligible, orderID, to)
	}

	if err := s.release(ctx, *order); err != nil {
		s.metrics.OrderProcessed("restock_failed")
		s.revertTransition(ctx, orderID, to, original)
		return fmt.Errorf("restock order %s: %w", orderID, err)
	}

	s.logger.Info("order restocked",
		zap.String("order_id", orderID),
		zap.String("status", string(to)),
		zap.Int("quantity", order.Quantity))
	return nil
}

func (s *OrderService) revertTransition(ctx context.Context, orderID string, to, original domain.OrderStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	ok, err := s.orders.TransitionOrder(ctx, orderID, []domain.OrderStatus{to}, original)
	if err != nil || !ok {
		s.logger.Error("CRITICAL: order left without its stock",
			zap.String("order_id", orderID),
			zap.String("status", string(to)),
			zap.Bool("reverted", ok),
			zap.Error(err))
		return
	}
	s.logger.Warn("restock failed, order status reverted",
		zap.String("order_id", orderID),
		zap.String("status", string(original)))
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) Close() {
	close(s.orderQueue)
}

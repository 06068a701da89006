package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/core/domain"
)

// RunWorker persists queued orders as confirmed until the queue is closed. If
// an order cannot be saved, its reserved stock is released.
func (s *OrderService) RunWorker(id int) {
	log := s.logger.With(zap.Int("worker", id))

	for order := range s.orderQueue {
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		s.persist(ctx, log, order)
		cancel()
	}
}

func (s *OrderService) persist(ctx context.Context, log *zap.Logger, order domain.Order) {
	order.Status = domain.OrderStatusConfirmed
	order.UpdatedAt = time.Now()

	err := s.orders.CreateOrder(ctx, order)
	if err == nil {
		s.metrics.OrderProcessed("saved")
		log.Debug("saved order", zap.String("order_id", order.ID))
		return
	}
	log.Error("failed to save order", zap.String("order_id", order.ID), zap.Error(err))

	// A save that hit its deadline leaves ctx done, so the release gets a fresh one.
	rbCtx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if rollbackErr := s.release(rbCtx, order); rollbackErr != nil {
		s.metrics.OrderProcessed("rollback_failed")
		log.Error("CRITICAL rollback failed",
			zap.String("order_id", order.ID), zap.Error(rollbackErr))
		return
	}
	s.metrics.OrderProcessed("rolled_back")
	log.Info("rolled back stock", zap.String("order_id", order.ID))
}

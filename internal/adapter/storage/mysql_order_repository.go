package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/fitfast/internal/core/domain"
)

type MySQLOrderRepository struct {
	db *sql.DB
}

func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

func (m *MySQLOrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (id, request_id, user_id, item_id, color, size, quantity, stock_model, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.RequestID, order.UserID, order.ItemID, order.Color, string(order.Size),
		order.Quantity, string(order.StockModel), string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrOrderExists
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	var size, model, status string
	err := m.db.QueryRowContext(ctx, `
		SELECT id, request_id, user_id, item_id, color, size, quantity, stock_model, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.RequestID, &order.UserID, &order.ItemID, &order.Color, &size,
		&order.Quantity, &model, &status, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	order.Size = domain.Size(size)
	order.StockModel = domain.StockModel(model)
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

func (m *MySQLOrderRepository) TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	args := make([]interface{}, 0, len(from)+2)
	args = append(args, string(to), orderID)
	for _, s := range from {
		args = append(args, string(s))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")

	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := m.GetOrder(ctx, orderID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

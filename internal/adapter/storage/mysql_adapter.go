package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/fitfast/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

const mysqlDuplicateEntry = 1062

// Migrate creates the tables used by MySQLStockStore and MySQLOrderRepository.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// MySQLStockStore expects a DSN with clientFoundRows=true so RowsAffected
// counts matched rows.
type MySQLStockStore struct {
	db *sql.DB
}

func NewMySQLStockStore(db *sql.DB) *MySQLStockStore {
	return &MySQLStockStore{db: db}
}

func (m *MySQLStockStore) CreateItem(ctx context.Context, item domain.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, garment_type, price_cents, stock_quantity, stock_model, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
		item.ID, item.Name, item.Description, string(item.GarmentType), item.PriceCents,
		string(domain.StockModelFlat), item.CreatedAt, now,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrItemExists
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (m *MySQLStockStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var item domain.Item
	var garment string
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, description, garment_type, price_cents, created_at, updated_at
		FROM items WHERE id = ?`, itemID,
	).Scan(&item.ID, &item.Name, &item.Description, &garment, &item.PriceCents, &item.CreatedAt, &item.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}

	item.GarmentType = domain.GarmentType(garment)
	return &item, nil
}

// Snapshot reads all stock tables inside one repeatable-read transaction.
func (m *MySQLStockStore) Snapshot(ctx context.Context, itemID string) (domain.StockSnapshot, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	snap := domain.StockSnapshot{
		ItemID:     itemID,
		Variants:   make(domain.VariantTable),
		ColorStock: make(map[string]int),
		Aggregation: domain.AggregationView{
			ColorTotals: make(map[string]int),
			SizeTotals:  make(map[domain.Size]int),
		},
	}

	var model string
	err = tx.QueryRowContext(ctx, `SELECT stock_quantity, stock_model, version FROM items WHERE id = ?`, itemID).
		Scan(&snap.Total, &model, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockSnapshot{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("query item stock: %w", err)
	}
	snap.Aggregation.Model = domain.StockModel(model)
	snap.Aggregation.GrandTotal = snap.Total

	err = scanRows(ctx, tx, `SELECT color, size, stock FROM item_variants WHERE item_id = ?`, itemID,
		func(rows *sql.Rows) error {
			var color, size string
			var stock int
			if err := rows.Scan(&color, &size, &stock); err != nil {
				return err
			}
			key, err := domain.NewVariantKey(color, size)
			if err != nil {
				return err
			}
			snap.Variants[key] = stock
			return nil
		})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("query variants: %w", err)
	}

	err = scanRows(ctx, tx, `SELECT color, stock FROM item_color_stock WHERE item_id = ?`, itemID,
		func(rows *sql.Rows) error {
			var color string
			var stock int
			if err := rows.Scan(&color, &stock); err != nil {
				return err
			}
			snap.ColorStock[color] = stock
			return nil
		})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("query colors: %w", err)
	}

	err = scanRows(ctx, tx, `SELECT color, total FROM item_color_totals WHERE item_id = ?`, itemID,
		func(rows *sql.Rows) error {
			var color string
			var total int
			if err := rows.Scan(&color, &total); err != nil {
				return err
			}
			snap.Aggregation.ColorTotals[color] = total
			return nil
		})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("query color totals: %w", err)
	}

	err = scanRows(ctx, tx, `SELECT size, total FROM item_size_totals WHERE item_id = ?`, itemID,
		func(rows *sql.Rows) error {
			var size string
			var total int
			if err := rows.Scan(&size, &total); err != nil {
				return err
			}
			snap.Aggregation.SizeTotals[domain.Size(size)] = total
			return nil
		})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("query size totals: %w", err)
	}

	return snap, tx.Commit()
}

func (m *MySQLStockStore) GetVariantStock(ctx context.Context, itemID string, key domain.VariantKey) (int, error) {
	return m.queryStock(ctx, `SELECT stock FROM item_variants WHERE item_id = ? AND color = ? AND size = ?`,
		itemID, key.Color, string(key.Size))
}

func (m *MySQLStockStore) SetVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	return m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		if quantity <= 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM item_variants WHERE item_id = ? AND color = ? AND size = ?`,
				itemID, key.Color, string(key.Size))
			return err == nil, err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_variants (item_id, color, size, stock) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE stock = VALUES(stock)`,
			itemID, key.Color, string(key.Size), quantity)
		return err == nil, err
	})
}

func (m *MySQLStockStore) DecrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) (bool, error) {
	var applied bool
	err := m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		var err error
		applied, err = conditionalDecrement(ctx, tx, `
			UPDATE item_variants SET stock = stock - ?
			WHERE item_id = ? AND color = ? AND size = ? AND stock >= ?`,
			quantity, itemID, key.Color, string(key.Size), quantity)
		if err != nil || !applied {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM item_variants WHERE item_id = ? AND color = ? AND size = ? AND stock <= 0`,
			itemID, key.Color, string(key.Size))
		return err == nil, err
	})
	return applied, err
}

func (m *MySQLStockStore) IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	return m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_variants (item_id, color, size, stock) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE stock = stock + VALUES(stock)`,
			itemID, key.Color, string(key.Size), quantity)
		return err == nil, err
	})
}

func (m *MySQLStockStore) GetColorStock(ctx context.Context, itemID, color string) (int, error) {
	return m.queryStock(ctx, `SELECT stock FROM item_color_stock WHERE item_id = ? AND color = ?`, itemID, color)
}

func (m *MySQLStockStore) SetColorStock(ctx context.Context, itemID, color string, quantity int) error {
	return m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		if quantity <= 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM item_color_stock WHERE item_id = ? AND color = ?`, itemID, color)
			return err == nil, err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_color_stock (item_id, color, stock) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE stock = VALUES(stock)`,
			itemID, color, quantity)
		return err == nil, err
	})
}

func (m *MySQLStockStore) DecrementColorStock(ctx context.Context, itemID, color string, quantity int) (bool, error) {
	var applied bool
	err := m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		var err error
		applied, err = conditionalDecrement(ctx, tx, `
			UPDATE item_color_stock SET stock = stock - ?
			WHERE item_id = ? AND color = ? AND stock >= ?`,
			quantity, itemID, color, quantity)
		if err != nil || !applied {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM item_color_stock WHERE item_id = ? AND color = ? AND stock <= 0`,
			itemID, color)
		return err == nil, err
	})
	return applied, err
}

func (m *MySQLStockStore) IncrementColorStock(ctx context.Context, itemID, color string, quantity int) error {
	return m.withItemTx(ctx, itemID, func(tx *sql.Tx) (bool, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_color_stock (item_id, color, stock) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE stock = stock + VALUES(stock)`,
			itemID, color, quantity)
		return err == nil, err
	})
}

func (m *MySQLStockStore) GetTotalStock(ctx context.Context, itemID string) (int, error) {
	return m.queryStock(ctx, `SELECT stock_quantity FROM items WHERE id = ?`, itemID)
}

// flatItemGuard limits a total update to items that track nothing finer than
// the flat total. It is part of the UPDATE, so the check and the write are one
// statement.
const flatItemGuard = `
	AND stock_model = 'flat'
	AND NOT EXISTS (SELECT 1 FROM item_variants WHERE item_id = items.id)
	AND NOT EXISTS (SELECT 1 FROM item_color_stock WHERE item_id = items.id)`

// DecrementTotalStock is the single-row form of the guarded update: the
// version bump and the check share one statement.
func (m *MySQLStockStore) DecrementTotalStock(ctx context.Context, itemID string, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET stock_quantity = stock_quantity - ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND stock_quantity >= ?`+flatItemGuard,
		quantity, itemID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("update total: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, m.checkFlat(ctx, itemID)
	}
	return true, nil
}

func (m *MySQLStockStore) IncrementTotalStock(ctx context.Context, itemID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET stock_quantity = stock_quantity + ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ?`+flatItemGuard,
		quantity, itemID,
	)
	if err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return m.checkFlat(ctx, itemID)
	}
	return nil
}

// checkFlat explains a total update that matched no row: a missing item, an
// item with variant or color stock, or nil when the stock was short.
func (m *MySQLStockStore) checkFlat(ctx context.Context, itemID string) error {
	var model string
	var finer bool
	err := m.db.QueryRowContext(ctx, `
		SELECT stock_model,
			EXISTS (SELECT 1 FROM item_variants WHERE item_id = items.id)
			OR EXISTS (SELECT 1 FROM item_color_stock WHERE item_id = items.id)
		FROM items WHERE id = ?`, itemID).Scan(&model, &finer)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("check stock model: %w", err)
	}
	if finer || domain.StockModel(model) != domain.StockModelFlat {
		return errNotFlat
	}
	return nil
}

func (m *MySQLStockStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE items SET stock_quantity = ?, stock_model = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND version = ?`,
		view.GrandTotal, string(view.Model), itemID, version,
	)
	if err != nil {
		return fmt.Errorf("update aggregation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := m.GetItem(ctx, itemID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_color_totals WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear color totals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_size_totals WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear size totals: %w", err)
	}
	for color, total := range view.ColorTotals {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_color_totals (item_id, color, total) VALUES (?, ?, ?)`,
			itemID, color, total); err != nil {
			return fmt.Errorf("insert color total: %w", err)
		}
	}
	for size, total := range view.SizeTotals {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_size_totals (item_id, size, total) VALUES (?, ?, ?)`,
			itemID, string(size), total); err != nil {
			return fmt.Errorf("insert size total: %w", err)
		}
	}

	return tx.Commit()
}

// withItemTx bumps the item's version first, which also takes its row lock,
// then runs fn in the same transaction. The transaction commits only when fn
// reports a change.
func (m *MySQLStockStore) withItemTx(ctx context.Context, itemID string, fn func(tx *sql.Tx) (bool, error)) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE items SET version = version + 1, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrItemNotFound
	}

	changed, err := fn(tx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return tx.Commit()
}

func (m *MySQLStockStore) queryStock(ctx context.Context, query string, args ...interface{}) (int, error) {
	var stock int
	err := m.db.QueryRowContext(ctx, query, args...).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return stock, nil
}

func conditionalDecrement(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (bool, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("conditional decrement: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func scanRows(ctx context.Context, tx *sql.Tx, query, itemID string, fn func(*sql.Rows) error) error {
	rows, err := tx.QueryContext(ctx, query, itemID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

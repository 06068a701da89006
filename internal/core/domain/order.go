package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

type Order struct {
	ID         string      `json:"id"`
	RequestID  string      `json:"request_id"`
	UserID     string      `json:"user_id"`
	ItemID     string      `json:"item_id"`
	Color      string      `json:"color,omitempty"`
	Size       Size        `json:"size,omitempty"`
	Quantity   int         `json:"quantity"`
	StockModel StockModel  `json:"stock_model"` // path the stock was reserved on
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderLine is one cart line submitted at checkout.
type OrderLine struct {
	ItemID   string `json:"item_id"`
	Color    string `json:"color"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

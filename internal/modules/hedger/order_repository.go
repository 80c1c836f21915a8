package hedger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// HedgeOrder is one row of the hedging order audit trail
type HedgeOrder struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	OrderID     string
	Symbol      string
	Side        domain.OrderSide
	Status      domain.OrderStatus
	Quantity    int64
	NetDelta    float64
	TargetDelta float64
	FillPrice   *float64
}

// OrderRepository persists hedging orders to hedge.db (hedge_orders
// table). Every submitted order is recorded immediately and updated as
// status transitions arrive from the execution collaborator.
type OrderRepository struct {
	db  *sql.DB // hedge.db
	log zerolog.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		db:  db,
		log: log.With().Str("repository", "hedge_order").Logger(),
	}
}

// Insert records a newly submitted hedging order
func (r *OrderRepository) Insert(order HedgeOrder) error {
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO hedge_orders
		(order_id, symbol, side, quantity, net_delta, target_delta, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		order.OrderID,
		order.Symbol,
		string(order.Side),
		order.Quantity,
		order.NetDelta,
		order.TargetDelta,
		string(order.Status),
		createdAt.UTC().Format(time.RFC3339),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert hedge order %s: %w", order.OrderID, err)
	}
	return nil
}

// UpdateStatus records an order status transition. A zero fill price
// leaves the stored price untouched.
func (r *OrderRepository) UpdateStatus(orderID string, status domain.OrderStatus, fillPrice float64) error {
	var err error
	now := time.Now().UTC().Format(time.RFC3339)

	if fillPrice > 0 {
		_, err = r.db.Exec(`
			UPDATE hedge_orders SET status = ?, fill_price = ?, updated_at = ? WHERE order_id = ?
		`, string(status), fillPrice, now, orderID)
	} else {
		_, err = r.db.Exec(`
			UPDATE hedge_orders SET status = ?, updated_at = ? WHERE order_id = ?
		`, string(status), now, orderID)
	}
	if err != nil {
		return fmt.Errorf("failed to update hedge order %s: %w", orderID, err)
	}
	return nil
}

// ListRecent returns the most recent orders for display, newest first
func (r *OrderRepository) ListRecent(limit int) ([]HedgeOrder, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT order_id, symbol, side, quantity, net_delta, target_delta, status,
		       fill_price, created_at, updated_at
		FROM hedge_orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hedge orders: %w", err)
	}
	defer rows.Close()

	var orders []HedgeOrder
	for rows.Next() {
		var (
			o                    HedgeOrder
			side, status         string
			createdAt, updatedAt string
			fillPrice            sql.NullFloat64
		)
		if err := rows.Scan(&o.OrderID, &o.Symbol, &side, &o.Quantity, &o.NetDelta,
			&o.TargetDelta, &status, &fillPrice, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hedge order: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Status = domain.OrderStatus(status)
		if fillPrice.Valid {
			o.FillPrice = &fillPrice.Float64
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CountPending returns the number of orders without a terminal status.
// Used at startup to detect orders orphaned by a crash.
func (r *OrderRepository) CountPending() (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM hedge_orders WHERE status = ?
	`, string(domain.OrderSubmitted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}
	return count, nil
}

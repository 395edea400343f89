package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const orderColumns = `
	id, order_number, user_id, status, currency, total_amount, cancellation_reason,
	customer_info, payment_method, payment_provider, payment_phone, payment_status,
	notes, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// customerInfoJSON — представление CustomerInfo в колонке JSONB.
type customerInfoJSON struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Notes     string `json:"notes,omitempty"`
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if order.Version == 0 {
		order.Version = 1
	}
	customer, err := marshalCustomer(order.CustomerInfo)
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			order.ID, order.OrderNumber, order.UserID, string(order.Status), order.Currency,
			order.TotalAmount, order.CancellationReason, customer,
			string(order.PaymentInfo.Method), order.PaymentInfo.Provider, order.PaymentInfo.PhoneNumber,
			string(order.PaymentInfo.Status), order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return persistErr("insert order", err)
		}
		return insertItems(ctx, tx, order.ID, order.Items)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistErr("select order", err)
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, persistErr("scan order row", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate order rows", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// Save обновляет заказ, только если в базе та же версия, и заменяет позиции.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	customer, err := marshalCustomer(order.CustomerInfo)
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $3,
			    currency = $4,
			    total_amount = $5,
			    cancellation_reason = $6,
			    customer_info = $7,
			    payment_method = $8,
			    payment_provider = $9,
			    payment_phone = $10,
			    payment_status = $11,
			    notes = $12,
			    updated_at = $13,
			    version = version + 1
			WHERE id = $1 AND version = $2
		`,
			order.ID, order.Version, string(order.Status), order.Currency, order.TotalAmount,
			order.CancellationReason, customer, string(order.PaymentInfo.Method),
			order.PaymentInfo.Provider, order.PaymentInfo.PhoneNumber, string(order.PaymentInfo.Status),
			order.Notes, order.UpdatedAt,
		)
		if err != nil {
			return persistErr("update order", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return persistErr("rows affected", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
				return persistErr("check order exists", err)
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return persistErr("delete order items", err)
		}
		return insertItems(ctx, tx, order.ID, order.Items)
	})
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, product_name, quantity, unit_price, total_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			orderID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice,
		); err != nil {
			return persistErr("insert order item", err)
		}
	}
	return nil
}

// loadItems загружает позиции нескольких заказов одним запросом.
func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, persistErr("load order items", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, persistErr("scan order item", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate order items", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                         domain.Order
		status, method, paymentStatus string
		customer                      []byte
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &status, &order.Currency,
		&order.TotalAmount, &order.CancellationReason, &customer,
		&method, &order.PaymentInfo.Provider, &order.PaymentInfo.PhoneNumber, &paymentStatus,
		&order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var info customerInfoJSON
	if err := json.Unmarshal(customer, &info); err != nil {
		return domain.Order{}, fmt.Errorf("decode customer_info of order %s: %w", order.ID, err)
	}
	order.CustomerInfo = domain.CustomerInfo(info)
	order.Status = domain.OrderStatus(status)
	order.PaymentInfo.Method = domain.PaymentMethod(method)
	order.PaymentInfo.Status = domain.PaymentStatus(paymentStatus)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func marshalCustomer(info domain.CustomerInfo) ([]byte, error) {
	data, err := json.Marshal(customerInfoJSON(info))
	if err != nil {
		return nil, fmt.Errorf("encode customer_info: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)

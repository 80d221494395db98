package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// orderColumns aliases the flat orders columns onto the nested Order struct.
const orderColumns = `
	id, order_number, status,
	customer_user_id AS "customer.user_id",
	customer_first_name AS "customer.first_name",
	customer_last_name AS "customer.last_name",
	customer_email AS "customer.email",
	customer_phone AS "customer.phone",
	shipping_address AS "shipping.address",
	shipping_city AS "shipping.city",
	shipping_state AS "shipping.state",
	shipping_zip_code AS "shipping.zip_code",
	shipping_country AS "shipping.country",
	gateway_order_id AS "payment.gateway_order_id",
	gateway_payment_id AS "payment.gateway_payment_id",
	gateway_signature AS "payment.gateway_signature",
	payment_amount AS "payment.amount",
	payment_currency AS "payment.currency",
	payment_status AS "payment.status",
	payment_method AS "payment.method",
	subtotal, shipping_fee, tax, total, tracking_number, notes,
	created_at, updated_at`

// CreateOrder inserts an order and its line items in one transaction. The
// order's ID, CreatedAt and UpdatedAt are filled in on success. A unique
// violation maps to ErrDuplicateOrderNumber or ErrDuplicatePayment.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_number, status,
			customer_user_id, customer_first_name, customer_last_name, customer_email, customer_phone,
			shipping_address, shipping_city, shipping_state, shipping_zip_code, shipping_country,
			gateway_order_id, gateway_payment_id, gateway_signature,
			payment_amount, payment_currency, payment_status, payment_method,
			subtotal, shipping_fee, tax, total
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23
		)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.Status,
		order.Customer.UserID, order.Customer.FirstName, order.Customer.LastName,
		order.Customer.Email, order.Customer.Phone,
		order.ShippingAddress.Address, order.ShippingAddress.City, order.ShippingAddress.State,
		order.ShippingAddress.ZipCode, order.ShippingAddress.Country,
		order.Payment.GatewayOrderID, order.Payment.GatewayPaymentID, order.Payment.GatewaySignature,
		order.Payment.Amount, order.Payment.Currency, order.Payment.Status, order.Payment.Method,
		order.Subtotal, order.Shipping, order.Tax, order.Total,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return classifyUniqueViolation(err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, name, price, price_value, quantity, image, specifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowxContext(ctx, itemQuery,
			item.OrderID, item.ProductID, item.Name, item.Price, item.PriceValue,
			item.Quantity, item.Image, item.Specifications,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order and its items by internal id.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByGatewayPaymentID retrieves the order created for a gateway
// payment reference. Used to resolve duplicate finalize calls.
func (s *Store) GetOrderByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE gateway_payment_id = $1", paymentID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	Status        string
	PaymentStatus string
}

// ListOrders returns one page of orders, newest first, plus the total count
// of orders matching the filter. Pagination happens in SQL.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter, page, pageSize int) ([]models.Order, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		where += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)-1, len(args))

	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	if err := s.loadItemsForOrders(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderStatus sets the order status and optionally tracking number and
// notes. Nil tracking/notes leave existing values untouched. Returns the
// updated order.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string, trackingNumber, notes *string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, ErrInvalidStatus
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    tracking_number = COALESCE($2, tracking_number),
		    notes = COALESCE($3, notes),
		    updated_at = NOW()
		WHERE id = $4`,
		status, trackingNumber, notes, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrOrderNotFound
	}

	return s.GetOrderByID(ctx, id)
}

// RecordStatusChange appends an audit row for a fulfillment transition.
func (s *Store) RecordStatusChange(ctx context.Context, change *models.StatusChange) error {
	query := `
		INSERT INTO order_status_history (order_id, from_status, to_status, tracking_number, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return s.db.QueryRowxContext(ctx, query,
		change.OrderID, change.FromStatus, change.ToStatus,
		change.TrackingNumber, change.Notes, change.ChangedAt,
	).Scan(&change.ID)
}

// GetStatusHistory returns the audit trail for an order, oldest first.
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusChange, error) {
	var history []models.StatusChange
	err := s.db.SelectContext(ctx, &history,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY changed_at", orderID)
	return history, err
}

func (s *Store) loadItems(ctx context.Context, order *models.Order) error {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items
	return nil
}

func (s *Store) loadItemsForOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		if order := byID[item.OrderID]; order != nil {
			order.Items = append(order.Items, item)
		}
	}
	return nil
}

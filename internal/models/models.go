package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// OrderStatuses lists every valid order status.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ValidOrderStatus reports whether s is one of the six order statuses.
func ValidOrderStatus(s string) bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ValidPaymentStatus reports whether s is a valid payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// transitions is the order-status transition table. Every edge is currently
// allowed, including backward moves; tightening the lifecycle later is an
// edit here, not a rewrite.
var transitions = func() map[string]map[string]bool {
	t := make(map[string]map[string]bool, len(OrderStatuses))
	for _, from := range OrderStatuses {
		t[from] = make(map[string]bool, len(OrderStatuses))
		for _, to := range OrderStatuses {
			t[from][to] = true
		}
	}
	return t
}()

// CanTransition reports whether an order may move from one status to another.
// Both statuses must be members of the enum.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Customer is a snapshot of the buyer captured at order time. The optional
// UserID links back to an account but the name/email/phone here never track
// later account changes.
type Customer struct {
	UserID    sql.NullString `db:"user_id" json:"user_id,omitempty"`
	FirstName string         `db:"first_name" json:"first_name"`
	LastName  string         `db:"last_name" json:"last_name"`
	Email     string         `db:"email" json:"email"`
	Phone     string         `db:"phone" json:"phone"`
}

// ShippingAddress is a snapshot captured at order time.
type ShippingAddress struct {
	Address string `db:"address" json:"address"`
	City    string `db:"city" json:"city"`
	State   string `db:"state" json:"state"`
	ZipCode string `db:"zip_code" json:"zip_code"`
	Country string `db:"country" json:"country"`
}

// Payment records the gateway references and signature accepted at
// verification time. The references and signature are immutable after
// creation; the signature is kept for audit and never re-validated.
type Payment struct {
	GatewayOrderID   string  `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID string  `db:"gateway_payment_id" json:"gateway_payment_id"`
	GatewaySignature string  `db:"gateway_signature" json:"-"`
	Amount           float64 `db:"amount" json:"amount"`
	Currency         string  `db:"currency" json:"currency"`
	Status           string  `db:"status" json:"status"`
	Method           string  `db:"method" json:"method"`
}

// Order is a customer order created once per verified payment.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	Status          string          `db:"status" json:"status"`
	Customer        Customer        `db:"customer" json:"customer"`
	ShippingAddress ShippingAddress `db:"shipping" json:"shipping_address"`
	Payment         Payment         `db:"payment" json:"payment"`
	Subtotal        float64         `db:"subtotal" json:"subtotal"`
	Shipping        float64         `db:"shipping_fee" json:"shipping"`
	Tax             float64         `db:"tax" json:"tax"`
	Total           float64         `db:"total" json:"total"`
	TrackingNumber  sql.NullString  `db:"tracking_number" json:"tracking_number,omitempty"`
	Notes           sql.NullString  `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is a line-item snapshot. Price carries the display string shown
// at purchase time, PriceValue the numeric unit price; neither is re-derived
// from the live catalog.
type OrderItem struct {
	ID             int64          `db:"id" json:"id"`
	OrderID        int64          `db:"order_id" json:"order_id"`
	ProductID      int64          `db:"product_id" json:"product_id"`
	Name           string         `db:"name" json:"name"`
	Price          string         `db:"price" json:"price"`
	PriceValue     float64        `db:"price_value" json:"price_value"`
	Quantity       int            `db:"quantity" json:"quantity"`
	Image          sql.NullString `db:"image" json:"image,omitempty"`
	Specifications Specifications `db:"specifications" json:"specifications,omitempty"`
}

// Specifications holds optional per-item product attributes (speed, payload,
// range, battery and the like), stored as jsonb.
type Specifications map[string]string

func (s Specifications) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *Specifications) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("specifications: cannot scan %T", src)
	}
	return json.Unmarshal(b, s)
}

// StatusChange is an audit record of a fulfillment transition.
type StatusChange struct {
	ID             int64          `db:"id" json:"id"`
	OrderID        int64          `db:"order_id" json:"order_id"`
	FromStatus     string         `db:"from_status" json:"from_status"`
	ToStatus       string         `db:"to_status" json:"to_status"`
	TrackingNumber sql.NullString `db:"tracking_number" json:"tracking_number,omitempty"`
	Notes          sql.NullString `db:"notes" json:"notes,omitempty"`
	ChangedAt      time.Time      `db:"changed_at" json:"changed_at"`
}

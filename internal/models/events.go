package models

import "time"

// Event types
const (
	EventTypeOrderFinalized     = "ORDER_FINALIZED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderFinalizedEvent published when a verified payment creates an order
type OrderFinalizedEvent struct {
	BaseEvent
	OrderID          int64   `json:"order_id"`
	OrderNumber      string  `json:"order_number"`
	GatewayOrderID   string  `json:"gateway_order_id"`
	GatewayPaymentID string  `json:"gateway_payment_id"`
	Total            float64 `json:"total"`
	Currency         string  `json:"currency"`
}

// OrderStatusChangedEvent published on every fulfillment transition. The
// audit worker appends these to order_status_history.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

package worker

import (
	"context"
	"database/sql"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

// AuditWorker consumes order lifecycle events and appends fulfillment
// transitions to order_status_history. Nothing in the request path waits
// on it.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	stopped      chan struct{}
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, st *store.Store) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    st,
		stopped:  make(chan struct{}),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	w.eventHandler = eventHandler

	return w
}

// Start consumes events until the context is cancelled.
func (w *AuditWorker) Start(ctx context.Context) error {
	defer close(w.stopped)
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer and waits for the loop to exit.
func (w *AuditWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		log.Printf("Error closing audit consumer: %v", err)
	}
	<-w.stopped
}

func (w *AuditWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	change := &models.StatusChange{
		OrderID:        event.OrderID,
		FromStatus:     event.FromStatus,
		ToStatus:       event.ToStatus,
		TrackingNumber: nullString(event.TrackingNumber),
		Notes:          nullString(event.Notes),
		ChangedAt:      event.Timestamp,
	}

	if err := w.store.RecordStatusChange(ctx, change); err != nil {
		log.Printf("Failed to record status change for order %d: %v", event.OrderID, err)
		return err
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentService drives admin-facing order lifecycle transitions and the
// admin read paths. Authorization happens upstream; callers are assumed to
// hold the admin capability already.
type FulfillmentService struct {
	repo   OrderRepository
	events EventPublisher
	logger *zap.Logger
}

// NewFulfillmentService creates a fulfillment service. events may be nil.
func NewFulfillmentService(repo OrderRepository, events EventPublisher) *FulfillmentService {
	return &FulfillmentService{
		repo:   repo,
		events: events,
		logger: util.GetLogger(),
	}
}

// Transition moves an order to newStatus and optionally attaches a tracking
// number and notes. Nil tracking/notes never clear existing values. Every
// transition is logged and published for audit; the transition table
// currently allows all edges, including backward moves.
func (s *FulfillmentService) Transition(ctx context.Context, orderID int64, newStatus string, trackingNumber, notes *string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Transition")
	defer span.End()

	if !models.ValidOrderStatus(newStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	current, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}

	if !models.CanTransition(current.Status, newStatus) {
		return nil, fmt.Errorf("%w: cannot move from %q to %q", ErrInvalidStatus, current.Status, newStatus)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, newStatus, trackingNumber, notes)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, store.ErrInvalidStatus) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	util.StatusTransitionsTotal.WithLabelValues(current.Status, newStatus).Inc()
	s.logger.Info("Order status transition",
		zap.Int64("order_id", orderID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("from", current.Status),
		zap.String("to", newStatus))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:     orderID,
			OrderNumber: updated.OrderNumber,
			FromStatus:  current.Status,
			ToStatus:    newStatus,
		}
		if trackingNumber != nil {
			event.TrackingNumber = *trackingNumber
		}
		if notes != nil {
			event.Notes = *notes
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return updated, nil
}

// GetOrder retrieves an order by internal id.
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetOrderHistory returns the audit trail of fulfillment transitions for an
// order, oldest first.
func (s *FulfillmentService) GetOrderHistory(ctx context.Context, orderID int64) ([]models.StatusChange, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	history, err := s.repo.GetStatusHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status history: %w", err)
	}
	return history, nil
}

// OrderPage is one page of the admin order list.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int64          `json:"total"`
	Pages  int64          `json:"pages"`
}

// ListOrders returns a filtered, newest-first page of orders. Page and limit
// are clamped to sane values; Total reflects the filter.
func (s *FulfillmentService) ListOrders(ctx context.Context, filter store.OrderFilter, page, limit int) (*OrderPage, error) {
	if filter.Status != "" && !models.ValidOrderStatus(filter.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if filter.PaymentStatus != "" && !models.ValidPaymentStatus(filter.PaymentStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.PaymentStatus)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	orders, total, err := s.repo.ListOrders(ctx, filter, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}

	return &OrderPage{
		Orders: orders,
		Page:   page,
		Limit:  limit,
		Total:  total,
		Pages:  pages,
	}, nil
}

package service

import (
	"context"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, repo *mockRepo) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber: "ORD-20260829-AB12C",
		Status:      models.OrderStatusProcessing,
		Payment: models.Payment{
			GatewayOrderID:   "gw_order_1",
			GatewayPaymentID: "gw_pay_1",
			Status:           models.PaymentStatusCompleted,
		},
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	return order
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	repo := newMockRepo()
	order := seedOrder(t, repo)
	svc := NewFulfillmentService(repo, nil)

	for _, status := range []string{"", "SHIPPED", "in_transit", "done", "Processing"} {
		_, err := svc.Transition(context.Background(), order.ID, status, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidStatus, "status %q must be rejected", status)
	}

	stored, err := repo.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, stored.Status, "rejected transitions must not change the stored status")
}

func TestTransitionAllowsEveryEnumEdge(t *testing.T) {
	repo := newMockRepo()
	order := seedOrder(t, repo)
	svc := NewFulfillmentService(repo, nil)

	// The transition table currently permits all edges, including backward
	// moves like delivered -> cancelled.
	for _, status := range []string{
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
		models.OrderStatusPending,
		models.OrderStatusRefunded,
	} {
		updated, err := svc.Transition(context.Background(), order.ID, status, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestTransitionNotFound(t *testing.T) {
	svc := NewFulfillmentService(newMockRepo(), nil)

	_, err := svc.Transition(context.Background(), 999, models.OrderStatusShipped, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersPagination(t *testing.T) {
	repo := newMockRepo()
	repo.listFunc = func(ctx context.Context, filter store.OrderFilter, page, pageSize int) ([]models.Order, int64, error) {
		assert.Equal(t, 2, page)
		assert.Equal(t, 10, pageSize)
		orders := make([]models.Order, 10)
		return orders, 25, nil
	}
	svc := NewFulfillmentService(repo, nil)

	result, err := svc.ListOrders(context.Background(), store.OrderFilter{}, 2, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, int64(3), result.Pages)
	assert.Equal(t, 2, result.Page)
	assert.Len(t, result.Orders, 10)
}

func TestListOrdersClampsPageAndLimit(t *testing.T) {
	repo := newMockRepo()
	repo.listFunc = func(ctx context.Context, filter store.OrderFilter, page, pageSize int) ([]models.Order, int64, error) {
		assert.Equal(t, 1, page)
		assert.Equal(t, 50, pageSize)
		return nil, 0, nil
	}
	svc := NewFulfillmentService(repo, nil)

	result, err := svc.ListOrders(context.Background(), store.OrderFilter{}, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Pages)
}

func TestListOrdersRejectsInvalidFilter(t *testing.T) {
	svc := NewFulfillmentService(newMockRepo(), nil)

	_, err := svc.ListOrders(context.Background(), store.OrderFilter{Status: "bogus"}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.ListOrders(context.Background(), store.OrderFilter{PaymentStatus: "bogus"}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidOrderStatus(t *testing.T) {
	for _, s := range OrderStatuses {
		assert.True(t, ValidOrderStatus(s))
	}

	for _, s := range []string{"", "PENDING", "Processing", "in_transit", "completed"} {
		assert.False(t, ValidOrderStatus(s), "%q must not be a valid order status", s)
	}
}

func TestValidPaymentStatus(t *testing.T) {
	for _, s := range []string{"pending", "completed", "failed", "refunded"} {
		assert.True(t, ValidPaymentStatus(s))
	}
	assert.False(t, ValidPaymentStatus("processing"))
	assert.False(t, ValidPaymentStatus(""))
}

func TestCanTransitionPermitsAllEnumEdges(t *testing.T) {
	for _, from := range OrderStatuses {
		for _, to := range OrderStatuses {
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionRejectsUnknownStatuses(t *testing.T) {
	assert.False(t, CanTransition("pending", "done"))
	assert.False(t, CanTransition("done", "pending"))
}

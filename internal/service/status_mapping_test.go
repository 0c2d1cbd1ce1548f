package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"points-service/internal/models"
)

func TestMapGatewayStatus(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		gateway string
		want    string
	}{
		{"PENDING", models.OrderStatusPending},
		{"PROCESSING", models.OrderStatusPending},
		{"COMPLETED", models.OrderStatusCompleted},
		{"FAILED", models.OrderStatusFailed},
		{"EXPIRED", models.OrderStatusExpired},
		{"CANCELLED", models.OrderStatusCancelled},
		{"SOMETHING_NEW", models.OrderStatusPending},
		{"", models.OrderStatusPending},
		{"completed", models.OrderStatusPending},
	}

	for _, tt := range tests {
		name := tt.gateway
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapGatewayStatus(tt.gateway, logger))
		})
	}
}

func TestMapGatewayStatus_NilLogger(t *testing.T) {
	assert.Equal(t, models.OrderStatusPending, MapGatewayStatus("UNKNOWN", nil))
}

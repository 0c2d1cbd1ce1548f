package service

import (
	"go.uber.org/zap"

	"points-service/internal/models"
)

// MapGatewayStatus translates the gateway's status vocabulary into the
// internal order status. Both reconciliation paths go through this single
// function so they can never disagree on the same external status.
// Unknown values map to PENDING with a warning, never an error.
func MapGatewayStatus(status string, logger *zap.Logger) string {
	switch status {
	case "PENDING":
		return models.OrderStatusPending
	case "PROCESSING":
		// The gateway reports PROCESSING while the payer has not settled;
		// internally the order is still awaiting payment.
		return models.OrderStatusPending
	case "COMPLETED":
		return models.OrderStatusCompleted
	case "FAILED":
		return models.OrderStatusFailed
	case "EXPIRED":
		return models.OrderStatusExpired
	case "CANCELLED":
		return models.OrderStatusCancelled
	default:
		if logger != nil {
			logger.Warn("Unknown gateway status, defaulting to PENDING",
				zap.String("gateway_status", status))
		}
		return models.OrderStatusPending
	}
}

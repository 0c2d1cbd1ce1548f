package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"points-service/internal/models"
	"points-service/internal/service"
	"points-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	createOrder *service.CreateOrderService
	poll        *service.PollService
	webhook     *service.WebhookService
	balance     *service.BalanceService
	history     service.HistoryRepository
}

// NewHandler creates a new HTTP handler
func NewHandler(
	createOrder *service.CreateOrderService,
	poll *service.PollService,
	webhook *service.WebhookService,
	balance *service.BalanceService,
	history service.HistoryRepository,
) *Handler {
	return &Handler{
		createOrder: createOrder,
		poll:        poll,
		webhook:     webhook,
		balance:     balance,
		history:     history,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.handleCreateOrder)
		v1.GET("/orders/:id", h.handleGetOrder)
		v1.GET("/orders/:id/history", h.handleGetOrderHistory)
		v1.GET("/users/:userId/orders", h.handleGetUserOrders)
		v1.GET("/users/:userId/balance", h.handleGetBalance)
		v1.GET("/users/:userId/transactions", h.handleGetTransactions)
		v1.POST("/webhooks/payments", h.handlePaymentWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// handleCreateOrder handles point purchase order creation
func (h *Handler) handleCreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.createOrder.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleGetOrder returns an order, reconciling it against the gateway first.
func (h *Handler) handleGetOrder(c *gin.Context) {
	order, err := h.poll.CheckOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// handleGetOrderHistory returns the audit trail for an order.
func (h *Handler) handleGetOrderHistory(c *gin.Context) {
	entries, err := h.history.GetHistoryByOrderID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// handleGetUserOrders lists a user's orders.
func (h *Handler) handleGetUserOrders(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := h.createOrder.GetOrdersByUser(c.Request.Context(), c.Param("userId"), limit, offset)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// handleGetBalance returns a user's points balance.
func (h *Handler) handleGetBalance(c *gin.Context) {
	balance, err := h.balance.GetBalance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Balance not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// handleGetTransactions lists a user's ledger entries.
func (h *Handler) handleGetTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	txns, err := h.balance.GetTransactions(c.Request.Context(), c.Param("userId"), limit, offset)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// handlePaymentWebhook receives gateway push notifications. The raw body
// is read before binding so the signature verifies the exact bytes sent.
func (h *Handler) handlePaymentWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var payload service.WebhookPayload
	if err := bindWebhookPayload(rawBody, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook payload",
			"details": err.Error(),
		})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	result := h.webhook.Process(c.Request.Context(), &payload, rawBody, signature)
	c.JSON(result.Code, result)
}

// bindWebhookPayload decodes the already-consumed body and checks the
// fields every delivery must carry.
func bindWebhookPayload(rawBody []byte, payload *service.WebhookPayload) error {
	if err := json.Unmarshal(rawBody, payload); err != nil {
		return err
	}
	if payload.TransactionID == "" {
		return errors.New("transactionId is required")
	}
	if payload.ExternalID == "" {
		return errors.New("externalId is required")
	}
	if payload.Status == "" {
		return errors.New("status is required")
	}
	return nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

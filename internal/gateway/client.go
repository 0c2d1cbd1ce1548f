// Package gateway talks to the external PIX payment gateway. Only the
// fields this service consumes are modeled.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

// Client is the HTTP client for the payment gateway. Every call is bounded
// by the configured timeout; a timeout means "status unknown this round",
// never a terminal state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client with a bounded HTTP timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: util.GetLogger(),
	}
}

// CreateTransactionRequest is the gateway's transaction-creation contract.
type CreateTransactionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	AmountType    string          `json:"amountType"`
	CryptoType    string          `json:"cryptoType,omitempty"`
	CryptoAmount  decimal.Decimal `json:"cryptoAmount,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	Type          string          `json:"type"`
	WalletAddress string          `json:"walletAddress,omitempty"`
	Network       string          `json:"network,omitempty"`
	ExternalID    string          `json:"externalId"`
}

// CreateTransactionResponse carries the fields consumed from the gateway.
type CreateTransactionResponse struct {
	TransactionID string `json:"transactionId"`
	QRCopyPaste   string `json:"qrCopyPaste"`
	QRImageURL    string `json:"qrImageUrl"`
}

// TransactionStatus is the gateway's view of a transaction.
type TransactionStatus struct {
	Status       string          `json:"status"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	TxID         string          `json:"txid"`
	CryptoAmount decimal.Decimal `json:"cryptoAmount"`
	CryptoType   string          `json:"cryptoType"`
	Network      string          `json:"network"`
}

// CreateTransaction registers a PIX charge with the gateway.
func (c *Client) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*CreateTransactionResponse, error) {
	ctx, span := util.StartSpan(ctx, "GatewayClient.CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues("create_transaction").Observe(time.Since(start).Seconds())
	}()

	var resp CreateTransactionResponse
	if err := c.post(ctx, "/v1/transactions", req, &resp); err != nil {
		util.GatewayCallsFailed.WithLabelValues("create_transaction").Inc()
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	c.logger.Info("Gateway transaction created",
		zap.String("transaction_id", resp.TransactionID),
		zap.String("external_id", req.ExternalID))
	return &resp, nil
}

// GetTransactionStatus fetches the gateway's current view of a transaction.
func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	ctx, span := util.StartSpan(ctx, "GatewayClient.GetTransactionStatus")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues("get_status").Observe(time.Since(start).Seconds())
	}()

	var status TransactionStatus
	url := fmt.Sprintf("%s/v1/transactions/%s", c.baseURL, transactionID)
	if err := c.get(ctx, url, &status); err != nil {
		util.GatewayCallsFailed.WithLabelValues("get_status").Inc()
		return nil, fmt.Errorf("get transaction status: %w", err)
	}
	return &status, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIntegration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", models.ErrIntegration, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Gateway returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("url", req.URL.Path))
		return fmt.Errorf("%w: gateway status %d", models.ErrIntegration, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", models.ErrIntegration, err)
	}
	return nil
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"points-service/internal/models"
)

func TestClient_CreateTransaction(t *testing.T) {
	var gotAuth string
	var gotReq CreateTransactionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/transactions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CreateTransactionResponse{
			TransactionID: "gw-txn-1",
			QRCopyPaste:   "qr-copy-paste",
			QRImageURL:    "https://qr.example/img.png",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "api-key-1", 5*time.Second)
	resp, err := client.CreateTransaction(context.Background(), &CreateTransactionRequest{
		Amount:        decimal.RequireFromString("105.00"),
		AmountType:    "FIAT",
		PaymentMethod: "PIX",
		Type:          "DEPOSIT",
		ExternalID:    "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "gw-txn-1", resp.TransactionID)
	assert.Equal(t, "qr-copy-paste", resp.QRCopyPaste)
	assert.Equal(t, "Bearer api-key-1", gotAuth)
	assert.Equal(t, "order-1", gotReq.ExternalID)
	assert.True(t, gotReq.Amount.Equal(decimal.RequireFromString("105.00")))
}

func TestClient_GetTransactionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/transactions/gw-txn-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TransactionStatus{
			Status:    "COMPLETED",
			UpdatedAt: time.Now(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	status, err := client.GetTransactionStatus(context.Background(), "gw-txn-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status.Status)
}

func TestClient_Non2xxIsIntegrationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	_, err := client.GetTransactionStatus(context.Background(), "gw-txn-1")
	assert.ErrorIs(t, err, models.ErrIntegration)

	_, err = client.CreateTransaction(context.Background(), &CreateTransactionRequest{ExternalID: "order-1"})
	assert.ErrorIs(t, err, models.ErrIntegration)
}

func TestClient_TimeoutIsIntegrationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 20*time.Millisecond)

	_, err := client.GetTransactionStatus(context.Background(), "gw-txn-1")
	assert.ErrorIs(t, err, models.ErrIntegration)
}

func TestClient_MalformedResponseIsIntegrationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	_, err := client.GetTransactionStatus(context.Background(), "gw-txn-1")
	assert.ErrorIs(t, err, models.ErrIntegration)
}

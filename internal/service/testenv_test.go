package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"points-service/internal/gateway"
	"points-service/internal/points"
)

// testEnv wires every service against the in-memory fakes, mirroring the
// production wiring in cmd/server.
type testEnv struct {
	store   *fakeStore
	gateway *fakeGateway
	locker  *fakeLocker
	deduper *fakeDeduper
	events  *fakePublisher
	credit  *CreditPointsService
	create  *CreateOrderService
	webhook *WebhookService
	poll    *PollService
}

type envOptions struct {
	webhookEnabled          bool
	releasePendingOnFailure bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	store := newFakeStore()
	gw := &fakeGateway{
		createResp: &gateway.CreateTransactionResponse{
			TransactionID: "gw-txn-1",
			QRCopyPaste:   "qr-copy-paste",
			QRImageURL:    "https://qr.example/img.png",
		},
		statusResp: &gateway.TransactionStatus{Status: "PENDING"},
	}
	locker := &fakeLocker{}
	deduper := newFakeDeduper()
	events := &fakePublisher{}

	credit := NewCreditPointsService(store, store, store, store, store, locker, events)
	create := NewCreateOrderService(store, store, store, store, gw, events,
		points.NewDefaultCalculator(), 20*time.Minute)
	webhook := NewWebhookService(
		WebhookServiceConfig{Enabled: opts.webhookEnabled, DedupeWindow: time.Hour},
		NewSignatureValidator(testSecret, false),
		store, store, store, store, store, deduper, credit, events,
		opts.releasePendingOnFailure)
	poll := NewPollService(store, gw, webhook.Applier())

	return &testEnv{
		store:   store,
		gateway: gw,
		locker:  locker,
		deduper: deduper,
		events:  events,
		credit:  credit,
		create:  create,
		webhook: webhook,
		poll:    poll,
	}
}

// createOrder runs the real creation flow so orders carry their pending
// reservation, ledger entry and gateway data like production rows do.
func (e *testEnv) createOrder(t *testing.T, userID, amount string) *CreateOrderResponse {
	t.Helper()

	resp, err := e.create.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: userID,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Order)
	return resp
}

// signedDelivery marshals the payload and returns the body with a valid
// signature, as the gateway would send them.
func signedDelivery(t *testing.T, payload *WebhookPayload) ([]byte, string) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body, ComputeSignature(body, testSecret)
}

func completedWebhook(orderID, gatewayTxnID, webhookID string) *WebhookPayload {
	return &WebhookPayload{
		WebhookID:     webhookID,
		TransactionID: gatewayTxnID,
		Status:        "COMPLETED",
		ExternalID:    orderID,
		UpdatedAt:     time.Now(),
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event_name":"payment.captured","gateway_transaction_id":"txn_1"}`)

	sig := Sign(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
}

func TestVerifyRejectsForgery(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event_name":"payment.captured"}`)
	sig := Sign(secret, body)

	assert.False(t, VerifySignature(secret, body, "deadbeef"))
	assert.False(t, VerifySignature(secret, []byte(`{"event_name":"tampered"}`), sig))
	assert.False(t, VerifySignature("other_secret", body, sig))
	assert.False(t, VerifySignature(secret, body, ""))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"event_name": "payment.captured",
		"gateway_transaction_id": "txn_abc",
		"order_reference": "ord-1",
		"amount": 125000,
		"currency": "INR"
	}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, ev.EventName)
	assert.Equal(t, "txn_abc", ev.TransactionID)
	assert.Equal(t, int64(125000), ev.Amount)
}

func TestParseWebhookMissingFields(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"event_name":"payment.captured"}`))
	assert.Error(t, err)

	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestCreateTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var req createTransactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-1", req.OrderReference)
		assert.Equal(t, int64(50000), req.Amount)

		_ = json.NewEncoder(w).Encode(Transaction{
			TxnID: "txn_new", Status: "created", Amount: req.Amount, Currency: req.Currency,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-1", 2*time.Second)
	txn, err := c.CreateTransaction(context.Background(), "ord-1", 50000, "INR")
	require.NoError(t, err)
	assert.Equal(t, "txn_new", txn.TxnID)
}

func TestRefundSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")

		var req refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(RefundResult{RefundID: req.RefundID, Status: "processed"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 2*time.Second)
	res, err := c.Refund(context.Background(), "rfnd-1", "txn_1", 50000)
	require.NoError(t, err)
	assert.Equal(t, "rfnd-1", res.RefundID)
	assert.Equal(t, "rfnd-1", gotKey)
}

func TestGatewayErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transaction not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 2*time.Second)
	_, err := c.Refund(context.Background(), "rfnd-1", "txn_missing", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "transaction not found")
}

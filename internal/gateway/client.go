package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transaction is the gateway's record of one payment attempt.
type Transaction struct {
	TxnID    string `json:"transaction_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

type Client interface {
	CreateTransaction(ctx context.Context, orderID string, amount int64, currency string) (*Transaction, error)
	Refund(ctx context.Context, refundID, txnID string, amount int64) (*RefundResult, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type createTransactionRequest struct {
	OrderReference string `json:"order_reference"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, orderID string, amount int64, currency string) (*Transaction, error) {
	var out Transaction
	req := createTransactionRequest{OrderReference: orderID, Amount: amount, Currency: currency}
	if err := c.postJSON(ctx, "/v1/transactions", "", req, &out); err != nil {
		return nil, err
	}
	if out.TxnID == "" {
		return nil, fmt.Errorf("gateway returned empty transaction id for order %s", orderID)
	}
	return &out, nil
}

type refundRequest struct {
	RefundID      string `json:"refund_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

// Refund submits a refund under a caller-supplied refund id. The gateway
// treats the id as an idempotency key, so resubmitting after a crash or
// timeout cannot double-pay.
func (c *HTTPClient) Refund(ctx context.Context, refundID, txnID string, amount int64) (*RefundResult, error) {
	var out RefundResult
	req := refundRequest{RefundID: refundID, TransactionID: txnID, Amount: amount}
	if err := c.postJSON(ctx, "/v1/refunds", refundID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		if msg != "" {
			return fmt.Errorf("gateway http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("gateway http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ScrapSettle/internal/audit"
	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/cache"
	"ScrapSettle/internal/gateway"
	"ScrapSettle/internal/models"
	"ScrapSettle/internal/orders"
	"ScrapSettle/internal/reconcile"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type AuditLister interface {
	ListAuditEntries(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

type Handler struct {
	Orders   *orders.Service
	Engine   *reconcile.Engine
	Audit    AuditLister
	Verifier auth.Verifier
	Hub      *audit.Hub
	Cache    *cache.OrderCache
}

func NewHandler(svc *orders.Service, engine *reconcile.Engine, lister AuditLister, verifier auth.Verifier, hub *audit.Hub, orderCache *cache.OrderCache) *Handler {
	return &Handler{
		Orders:   svc,
		Engine:   engine,
		Audit:    lister,
		Verifier: verifier,
		Hub:      hub,
		Cache:    orderCache,
	}
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	identity, err := h.Verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
		} else {
			writeError(w, http.StatusServiceUnavailable, "identity service unavailable")
		}
		return auth.Identity{}, false
	}
	return identity, true
}

type createOrderRequest struct {
	EstimatedAmount int64 `json:"estimatedAmount"`
}

type orderResponse struct {
	OrderID         string `json:"orderId"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"paymentStatus"`
	EstimatedAmount int64  `json:"estimatedAmount"`
	FinalAmount     *int64 `json:"finalAmount,omitempty"`
	Currency        string `json:"currency"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func toOrderResponse(order *models.Order) orderResponse {
	return orderResponse{
		OrderID:         order.OrderID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		EstimatedAmount: order.EstimatedAmount,
		FinalAmount:     order.FinalAmount,
		Currency:        order.Currency,
		CreatedAt:       order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       order.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.Create(r.Context(), identity, req.EstimatedAmount)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrBelowMinimum):
			writeError(w, http.StatusBadRequest, "estimated amount below minimum")
		case errors.Is(err, auth.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "unauthenticated")
		default:
			writeError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.Orders.Get(r.Context(), identity, orderID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusInternalServerError, "get order failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	order, err := h.Orders.Cancel(r.Context(), identity, orderID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, reconcile.ErrPaidOrderCancel):
			writeError(w, http.StatusConflict, "paid order must be refunded")
		case errors.Is(err, reconcile.ErrIllegalTransition):
			writeError(w, http.StatusConflict, "order cannot be cancelled")
		default:
			writeError(w, http.StatusInternalServerError, "cancel order failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type initiatePaymentRequest struct {
	OrderID string `json:"orderId"`
}

type paymentResponse struct {
	PaymentID            string `json:"paymentId"`
	OrderID              string `json:"orderId"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
	Status               string `json:"status"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	payment, err := h.Engine.InitiatePayment(r.Context(), identity, req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, reconcile.ErrNotPayable):
			writeError(w, http.StatusConflict, "order cannot accept a payment attempt")
		default:
			writeError(w, http.StatusInternalServerError, "initiate payment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		PaymentID:            payment.PaymentID,
		OrderID:              payment.OrderID,
		GatewayTransactionID: payment.GatewayTxnID,
		Status:               string(payment.Status),
		Amount:               payment.Amount,
		Currency:             payment.Currency,
	})
}

// confirmPaymentRequest mirrors what the gateway checkout SDK hands the
// client, hence the wire naming.
type confirmPaymentRequest struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"gateway_transaction_id"`
	Outcome       string `json:"outcome"`
}

type resultResponse struct {
	Outcome string `json:"outcome"`
	OrderID string `json:"orderId,omitempty"`
	Summary string `json:"summary,omitempty"`
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.Engine.HandleClientConfirmation(r.Context(), identity, req.OrderID, req.TransactionID, req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			writeError(w, http.StatusInternalServerError, "confirm payment failed")
		}
		return
	}

	if res.Outcome == reconcile.OutcomeApplied {
		h.Cache.Invalidate(r.Context(), req.OrderID)
	}

	// No retry loop is watching this path, so a conflicting report is a real
	// client-visible rejection.
	status := http.StatusOK
	if res.Outcome == reconcile.OutcomeConflict {
		status = http.StatusConflict
	}
	writeJSON(w, status, resultResponse{Outcome: string(res.Outcome), OrderID: res.OrderID, Summary: res.Summary})
}

// GatewayWebhook answers 2xx for every terminal outcome, conflicts included.
// The gateway's retry loop only backs off on 2xx; a conflict will not improve
// on redelivery, so reporting it as an error would just buy duplicate
// deliveries of a dead update.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.Engine.HandleWebhook(r.Context(), body,
		r.Header.Get(gateway.SignatureHeader), r.Header.Get(gateway.EventIDHeader))
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrBadSignature):
			writeError(w, http.StatusUnauthorized, "signature mismatch")
		case errors.Is(err, reconcile.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, "webhook processing unavailable")
		}
		return
	}

	if res.Outcome == reconcile.OutcomeApplied {
		h.Cache.Invalidate(r.Context(), res.OrderID)
	}

	writeJSON(w, http.StatusOK, resultResponse{Outcome: string(res.Outcome), OrderID: res.OrderID, Summary: res.Summary})
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	Outcome  string `json:"outcome"`
	RefundID string `json:"refundId,omitempty"`
	Amount   int64  `json:"amount"`
}

func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	// Body is optional; an empty body refunds the full settled amount.
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.Engine.Refund(r.Context(), identity, orderID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "operator role required")
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, reconcile.ErrRefundAmount):
			writeError(w, http.StatusConflict, "refund amount exceeds settled amount")
		case errors.Is(err, reconcile.ErrOrderCancelled):
			writeError(w, http.StatusConflict, "order is cancelled")
		case errors.Is(err, reconcile.ErrNotRefundable):
			writeError(w, http.StatusConflict, "order has no settled payment")
		default:
			writeError(w, http.StatusInternalServerError, "refund failed")
		}
		return
	}

	h.Cache.Invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, refundResponse{
		Outcome:  string(res.Outcome),
		RefundID: res.RefundID,
		Amount:   res.Amount,
	})
}

type fulfillmentRequest struct {
	Target string `json:"target"`
}

func (h *Handler) AdvanceFulfillment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var req fulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.Advance(r.Context(), identity, orderID, models.OrderStatus(req.Target))
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrBadTarget):
			writeError(w, http.StatusBadRequest, "unsupported fulfillment target")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, http.StatusForbidden, "operator role required")
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, reconcile.ErrIllegalTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "advance fulfillment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type auditEntryResponse struct {
	ID             int64  `json:"id"`
	OrderID        string `json:"orderId"`
	Kind           string `json:"kind"`
	Detail         string `json:"detail"`
	GatewayTxnID   string `json:"gatewayTxnId,omitempty"`
	CompetingTxnID string `json:"competingTxnId,omitempty"`
	Actor          string `json:"actor,omitempty"`
	TraceID        string `json:"traceId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !identity.IsOperator() {
		writeError(w, http.StatusForbidden, "operator role required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1..500")
			return
		}
		limit = n
	}

	entries, err := h.Audit.ListAuditEntries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list audit failed")
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:             e.ID,
			OrderID:        e.OrderID,
			Kind:           e.Kind,
			Detail:         e.Detail,
			GatewayTxnID:   e.GatewayTxnID,
			CompetingTxnID: e.CompetingTxnID,
			Actor:          e.Actor,
			TraceID:        e.TraceID,
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

package http

import (
	"net/http"

	"ScrapSettle/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
		r.Get("/{orderId}", handler.GetOrder)
		r.Post("/{orderId}/cancel", handler.CancelOrder)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/initiate", handler.InitiatePayment)
		r.Post("/confirm", handler.ConfirmPayment)
	})

	r.Post("/webhooks/gateway", handler.GatewayWebhook)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/orders/{orderId}/refund", handler.RefundOrder)
		r.Post("/orders/{orderId}/fulfillment", handler.AdvanceFulfillment)
		r.Get("/audit", handler.ListAudit)
		r.Get("/audit/stream", handler.StreamAudit)
	})

	return &Server{Router: r}
}

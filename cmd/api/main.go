package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ScrapSettle/internal/audit"
	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/cache"
	"ScrapSettle/internal/config"
	"ScrapSettle/internal/db"
	"ScrapSettle/internal/gateway"
	internalhttp "ScrapSettle/internal/http"
	"ScrapSettle/internal/orders"
	"ScrapSettle/internal/reconcile"
	"ScrapSettle/internal/store"
	"ScrapSettle/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	telemetry.InitLogger()

	ctx := context.Background()
	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Fatalf("tracer setup failed: %v", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey,
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
	hub := audit.NewHub()
	engine := &reconcile.Engine{
		Store:         st,
		Gateway:       gw,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Currency:      cfg.Orders.Currency,
		Audit:         hub,
	}

	var orderCache *cache.OrderCache
	if cfg.Redis.Addr != "" {
		orderCache = cache.NewOrderCache(cfg.Redis.Addr, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		defer orderCache.Close()
	}

	orderSvc := &orders.Service{
		Store:     st,
		Engine:    engine,
		Cache:     orderCache,
		MinAmount: cfg.Orders.MinAmountPaise,
		Currency:  cfg.Orders.Currency,
	}

	verifier := auth.NewHTTPVerifier(cfg.Identity.BaseURL,
		time.Duration(cfg.Identity.TimeoutSeconds)*time.Second)
	h := internalhttp.NewHandler(orderSvc, engine, st, verifier, hub, orderCache)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		slog.Info("api listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

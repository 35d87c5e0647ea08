package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/chrisimbolon/bookingops/internal/api"
	"github.com/chrisimbolon/bookingops/internal/config"
	"github.com/chrisimbolon/bookingops/internal/gateway"
	"github.com/chrisimbolon/bookingops/internal/notify"
	"github.com/chrisimbolon/bookingops/internal/service"
	"github.com/chrisimbolon/bookingops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)

	ctx := context.Background()
	ledger, err := store.New(ctx, cfg.DBSource)
	if err != nil {
		log.Error("database connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledger.Close()

	var cache redis.Cmdable
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		cache = rdb
	}

	var notifier service.ConfirmationNotifier = notify.LogNotifier{Log: log}
	if cfg.RabbitURL != "" {
		pub, err := notify.NewPublisher(cfg.RabbitURL, cfg.BookingExchange, log)
		if err != nil {
			log.Error("rabbitmq connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pub.Close()
		notifier = pub
	}

	gw := gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	intent := service.NewIntentService(ledger, gw, cfg.Currency, log)
	reconciler := service.NewReconciler(ledger, gw, notifier, log)
	queries := service.NewQueryService(ledger, cache, log)

	handler := api.NewHandler(intent, reconciler, queries, log)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/sessions", handler.ListSessionsHandler).Methods("GET")
	apiV1.HandleFunc("/bookings", handler.CreateBookingHandler).Methods("POST")
	apiV1.HandleFunc("/bookings", handler.ListBookingsHandler).Methods("GET")
	apiV1.HandleFunc("/bookings/{id}", handler.GetBookingHandler).Methods("GET")
	apiV1.HandleFunc("/payments/webhook", handler.WebhookHandler).Methods("POST")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server startup failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
	}
	log.Info("server exiting")
}

func setupLogger(env string) *slog.Logger {
	var handler slog.Handler
	switch env {
	case "production":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

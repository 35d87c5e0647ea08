package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chrisimbolon/bookingops/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookingops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	webhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingops_webhook_notifications_total",
		Help: "Verified webhook deliveries by reconciliation outcome",
	}, []string{"outcome"})

	orphanedAuthorizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookingops_orphaned_authorizations_total",
		Help: "Authorizations created at the gateway whose local booking write failed",
	})
)

// maxNotificationBytes bounds webhook payload reads.
const maxNotificationBytes = 1 << 16

type Handler struct {
	intent     *service.IntentService
	reconciler *service.Reconciler
	queries    *service.QueryService
	log        *slog.Logger
}

func NewHandler(intent *service.IntentService, reconciler *service.Reconciler, queries *service.QueryService, log *slog.Logger) *Handler {
	return &Handler{intent: intent, reconciler: reconciler, queries: queries, log: log}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/bookings"))
	defer timer.ObserveDuration()

	var req service.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/bookings", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	resp, err := h.intent.CreateBooking(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			httpRequestsTotal.WithLabelValues("POST", "/bookings", "422").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrSessionNotFound):
			httpRequestsTotal.WithLabelValues("POST", "/bookings", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, service.ErrGateway):
			httpRequestsTotal.WithLabelValues("POST", "/bookings", "502").Inc()
			respondWithError(w, http.StatusBadGateway, "Payment authorization failed")
		case errors.Is(err, service.ErrOrphanedAuthorization):
			// Charge authorized, booking not recorded. Distinguishable
			// from "nothing happened" so remediation can differ.
			orphanedAuthorizations.Inc()
			h.log.Error("orphaned authorization", slog.Any("error", err))
			httpRequestsTotal.WithLabelValues("POST", "/bookings", "500").Inc()
			respondWithJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "booking could not be recorded",
				"code":  "authorization_orphaned",
			})
		default:
			httpRequestsTotal.WithLabelValues("POST", "/bookings", "500").Inc()
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/bookings", "201").Inc()
	respondWithJSON(w, http.StatusCreated, resp)
}

// WebhookHandler is the processor-facing notification endpoint. The status
// code is the only signal the gateway consumes: 2xx stops redelivery, so
// it is sent only after the reconciler committed (or decided to no-op).
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payments/webhook"))
	defer timer.ObserveDuration()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			// An oversized payload must not be truncated into a signature
			// mismatch; report it as what it is.
			httpRequestsTotal.WithLabelValues("POST", "/payments/webhook", "413").Inc()
			respondWithError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		httpRequestsTotal.WithLabelValues("POST", "/payments/webhook", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}

	outcome, err := h.reconciler.HandleNotification(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrAuthenticity) {
			httpRequestsTotal.WithLabelValues("POST", "/payments/webhook", "400").Inc()
			respondWithError(w, http.StatusBadRequest, "Signature verification failed")
			return
		}
		h.log.Error("notification handling failed", slog.Any("error", err))
		httpRequestsTotal.WithLabelValues("POST", "/payments/webhook", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	webhookOutcomes.WithLabelValues(string(outcome)).Inc()
	httpRequestsTotal.WithLabelValues("POST", "/payments/webhook", "200").Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	booking, err := h.queries.GetBooking(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, service.ErrBookingNotFound) || errors.Is(err, service.ErrValidation) {
			httpRequestsTotal.WithLabelValues("GET", "/bookings/{id}", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Booking not found")
			return
		}
		httpRequestsTotal.WithLabelValues("GET", "/bookings/{id}", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/bookings/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, booking)
}

func (h *Handler) ListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httpRequestsTotal.WithLabelValues("GET", "/bookings", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Missing email query parameter")
		return
	}

	bookings, err := h.queries.ListBookingsByEmail(r.Context(), email)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/bookings", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/bookings", "200").Inc()
	respondWithJSON(w, http.StatusOK, bookings)
}

func (h *Handler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.queries.ListAvailableSessions(r.Context())
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/sessions", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/sessions", "200").Inc()
	respondWithJSON(w, http.StatusOK, sessions)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/internal/database"
	"github.com/smaller-world/happytown.life/internal/metrics"
	"github.com/smaller-world/happytown.life/internal/middleware"
	"github.com/smaller-world/happytown.life/internal/models"
	"github.com/smaller-world/happytown.life/internal/service"
	"github.com/smaller-world/happytown.life/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

type server struct {
	db      *database.Database
	service *service.Service
	secret  string
	logger  *logrus.Logger
}

func newServer(db *database.Database, svc *service.Service, secret string, logger *logrus.Logger) *server {
	return &server{db: db, service: svc, secret: secret, logger: logger}
}

func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Observability(s.logger))
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *server) httpServer(port int) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router(),
		ReadTimeout:  constants.DefaultReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultIdleTimeoutSec * time.Second,
	}
}

// handleWebhook records the delivery in the idempotent event log and hands
// processing to the dispatcher. It answers fast; the gateway only needs the
// acknowledgement.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !validSignature(r, s.secret) {
		s.logger.WithField("remote_ip", middleware.ClientIP(r)).
			Warn("Rejected webhook with bad signature")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	var envelope models.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Event == "" {
		s.logger.WithError(err).Warn("Undecodable webhook envelope")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "undecodable envelope"})
		return
	}

	providerEventID := envelope.ProviderEventID()

	tracing.AddSpanAttributes(ctx,
		attribute.String("webhook.event", envelope.Event),
		attribute.String("webhook.provider_event_id", providerEventID),
	)

	outcome, err := s.db.RecordWebhookEvent(ctx, envelope.Event, providerEventID, envelope.Time(), body)
	if err != nil {
		s.logger.WithError(err).Error("Failed to record webhook event")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
		return
	}

	metrics.IncrementCounter("webhook_events_total", map[string]string{"event": envelope.Event})
	if outcome == models.OutcomeAlreadyRecorded {
		metrics.IncrementCounter("webhook_events_duplicate", map[string]string{"event": envelope.Event})
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	s.service.EnqueueProcessEvent(&envelope, providerEventID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GetAllMetrics())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

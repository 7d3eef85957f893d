// Package server exposes the settlement engine over HTTP. Handlers decode
// JSON, delegate to the services, and map engine errors onto statuses;
// no business rules live here.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkarkhanis/splitex/internal/auth"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/middleware"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/service"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	events      *service.EventService
	expenses    *service.ExpenseService
	settlements *service.SettlementService
	authn       auth.Authenticator
	jwt         *auth.JWTManager
	hub         *realtime.Hub
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
}

// New creates a Server.
func New(
	events *service.EventService,
	expenses *service.ExpenseService,
	settlements *service.SettlementService,
	authn auth.Authenticator,
	jwt *auth.JWTManager,
	hub *realtime.Hub,
	m *metrics.Metrics,
	registry *prometheus.Registry,
) *Server {
	return &Server{
		events:      events,
		expenses:    expenses,
		settlements: settlements,
		authn:       authn,
		jwt:         jwt,
		hub:         hub,
		metrics:     m,
		registry:    registry,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Instrument(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Webhooks authenticate by callback ID, not bearer token.
		r.Post("/webhooks/payments", s.handleGatewayCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwt))

			r.Post("/events", s.handleCreateEvent)
			r.Route("/events/{eventID}", func(r chi.Router) {
				r.Get("/", s.handleGetEvent)
				r.Patch("/", s.handleUpdateEvent)
				r.Delete("/", s.handleDeleteEvent)
				r.Post("/close", s.handleCloseEvent)
				r.Post("/participants", s.handleAddParticipant)
				r.Post("/groups", s.handleCreateGroup)
				r.Get("/expenses", s.handleListExpenses)
				r.Post("/expenses", s.handleAddExpense)
				r.Get("/balances", s.handleBalances)
				r.Get("/settlements", s.handleListSettlements)
				r.Post("/settlements/generate", s.handleGeneratePlan)
				r.Post("/settlements/approve", s.handleApprovePlan)
				r.Get("/stream", s.handleStream)
			})

			r.Put("/expenses/{expenseID}", s.handleUpdateExpense)
			r.Delete("/expenses/{expenseID}", s.handleDeleteExpense)

			r.Route("/settlements/{settlementID}", func(r chi.Router) {
				r.Post("/pay", s.handlePay)
				r.Post("/retry", s.handleRetry)
				r.Post("/approve", s.handleApproveSettlement)
			})
		})
	})

	return r
}

// handleStream is a server-sent-events feed of an event's realtime
// messages. Access is checked once on connect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, err := s.events.GetEvent(r.Context(), middleware.GetUserID(r.Context()), eventID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.hub.Subscribe("event:" + eventID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

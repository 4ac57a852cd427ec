// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/okian/detflow/internal/domain/dedupe"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// HandleInbound processes one channel message and waits for the reply.
	HandleInbound(ctx context.Context, msg model.InboundMessage) (model.Reply, error)

	// Read operations.
	Caller(ctx context.Context, address string) (model.Caller, error)
	CallerSubmissions(ctx context.Context, address string, limit int) ([]model.Submission, error)
	Submission(ctx context.Context, id uuid.UUID) (model.Submission, error)

	// Recommend runs the model selector over the configured catalog.
	Recommend(activity string, req *selection.Requirements) (selection.Result, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	webhookHandler   *WebhookHandler
	readHandler      *ReadHandler
	recommendHandler *RecommendHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Get()
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		webhookHandler:   NewWebhookHandler(deps, log),
		readHandler:      NewReadHandler(deps),
		recommendHandler: NewRecommendHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /webhook/messages", MetricsMiddleware(s.webhookHandler.HandleMessage, "webhook"))
	mux.HandleFunc("GET /api/callers/{address}", MetricsMiddleware(s.readHandler.HandleGetCaller, "caller"))
	mux.HandleFunc("GET /api/callers/{address}/submissions", MetricsMiddleware(s.readHandler.HandleListSubmissions, "caller_submissions"))
	mux.HandleFunc("GET /api/submissions/{id}", MetricsMiddleware(s.readHandler.HandleGetSubmission, "submission"))
	mux.HandleFunc("GET /api/recommendations", MetricsMiddleware(s.recommendHandler.HandleRecommend, "recommendations"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError responds with the status of err's kind. Internal causes are
// not echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := classify(err)
	status, code := statusFor(kind)
	msg := err.Error()
	if kind == ErrInternal {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

package server

import (
	"log/slog"
	"net/http"

	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/handlers"
	"superstore-dashboard/internal/services"
)

type Server struct {
	dataset     *services.Dataset
	sessions    *dashboard.Registry
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(dataset *services.Dataset, sessions *dashboard.Registry, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		dataset:     dataset,
		sessions:    sessions,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(dataset, sessions, logger),
		sseHandlers: handlers.NewSSEHandlers(sessions, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/dashboard", s.apiHandlers.HandleDashboard)
	s.mux.HandleFunc("GET /api/filters", s.apiHandlers.HandleGetFilters)
	s.mux.HandleFunc("POST /api/filters", s.apiHandlers.HandleUpdateFilters)
	s.mux.HandleFunc("GET /api/kpis", s.apiHandlers.HandleKPIs)
	s.mux.HandleFunc("GET /api/aggregates", s.apiHandlers.HandleAggregates)
	s.mux.HandleFunc("GET /api/states", s.apiHandlers.HandleStates)
	s.mux.HandleFunc("POST /api/insight", s.apiHandlers.HandleInsight)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/dashboard", s.sseHandlers.HandleDashboard)
	s.mux.HandleFunc("POST /sse/filters", s.sseHandlers.HandleFilters)
	s.mux.HandleFunc("GET /sse/insight", s.sseHandlers.HandleInsight)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

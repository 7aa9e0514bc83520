package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"superstore-dashboard/internal/config"
	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/handlers"
	"superstore-dashboard/internal/insight"
	"superstore-dashboard/internal/middleware"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/server"
	"superstore-dashboard/internal/services"
	"superstore-dashboard/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	csvLoadTimeout = 30 * time.Second
)

// newDashboardPage serves the page with the session's current filters.
func newDashboardPage(sessions *dashboard.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		controller := handlers.SessionController(w, r, sessions)
		page, err := templates.Dashboard(controller.Render(ctx, 0))
		if err != nil {
			logger.Error("build dashboard page", "error", err)
			http.Error(w, "render error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := page.Render(ctx, w); err != nil {
			logger.Error("render dashboard page", "error", err)
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// newGenerator picks the insight model client. A nil generator means every
// insight uses the fallback sentences.
func newGenerator(ctx context.Context, cfg config.InsightConfig) (insight.Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return insight.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "ollama":
		return insight.NewOllamaClient(cfg.Endpoint, cfg.Model, &http.Client{Timeout: cfg.Timeout}), nil
	default:
		return nil, nil
	}
}

func dashboardOptions(cfg config.DashboardConfig) dashboard.Options {
	return dashboard.Options{
		Defaults: models.FilterState{
			DateRange:      cfg.DefaultDateRange,
			Region:         cfg.DefaultRegion,
			ProfitRatioMin: cfg.DefaultProfitRatioMin,
			ProfitRatioMax: cfg.DefaultProfitRatioMax,
		},
		YearAnchor: cfg.YearAnchor,
		MapStyle:   cfg.MapStyle,
		TopoJSON:   cfg.MapTopoJSON,
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	dataset := services.NewDataset()
	dataset.SetCacheDir(cfg.Database.CacheDir)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), csvLoadTimeout)
	start := time.Now()
	if err := dataset.LoadFromCSV(loadCtx, cfg.Database.CSVFile); err != nil {
		// The dashboard still starts and shows the load error over an empty dataset.
		logger.Error("failed to load CSV data", "file", cfg.Database.CSVFile, "error", err)
	} else {
		logger.Info("CSV data loaded successfully", "duration", time.Since(start), "records", len(dataset.Records()))
	}
	cancelLoad()

	prompts, err := insight.LoadPrompts(cfg.Insight.PromptsFile)
	if err != nil {
		logger.Error("failed to load insight prompts", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	generator, err := newGenerator(ctx, cfg.Insight)
	if err != nil {
		logger.Warn("insight model unavailable, using fallback insights only", "provider", cfg.Insight.Provider, "error", err)
		generator = nil
	}
	insights := insight.NewService(generator, prompts, cfg.Insight.Timeout, logger)

	opts := dashboardOptions(cfg.Dashboard)
	sessions := dashboard.NewRegistry(func() *dashboard.Controller {
		return dashboard.NewController(dataset, insights, opts, logger)
	}, cfg.Dashboard.SessionTTL, logger)
	go sessions.Run(ctx)

	templateHandlers := &server.TemplateHandlers{
		Dashboard: newDashboardPage(sessions, logger),
	}

	srv := server.NewServer(dataset, sessions, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)
	go rateLimiter.Run(ctx)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("background-workers", func(ctx context.Context) error {
		cancel()
		return nil
	})
	gracefulServer.RegisterShutdownHook("sessions", sessions.Close)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}

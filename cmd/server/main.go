package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"symptosafe/internal/agent"
	"symptosafe/internal/analysis"
	"symptosafe/internal/config"
	"symptosafe/internal/consultation"
	"symptosafe/internal/facility"
	"symptosafe/internal/insight"
	"symptosafe/internal/logging"
	"symptosafe/internal/platform/database"
	"symptosafe/internal/platform/telegram"
	"symptosafe/internal/report"
	"symptosafe/internal/safety"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Infrastructure
	var repo consultation.Repository
	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("could not connect to database, session history disabled", zap.Error(err))
	} else {
		defer db.Close()
		if err := database.Migrate(db, cfg.StorageDriver, cfg.MigrationsPath); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		logger.Info("database ready", zap.String("driver", cfg.StorageDriver))
		repo = consultation.NewRepository(db)
	}

	registry, err := safety.LoadRegistry(cfg.RegistryFile)
	if err != nil {
		logger.Fatal("load emergency registry", zap.Error(err))
	}
	logger.Info("emergency registry loaded", zap.Int("categories", registry.Len()))

	// 2. Clients
	reasoner, err := agent.NewReasoner(ctx, cfg)
	switch {
	case errors.Is(err, analysis.ErrMissingCredential):
		logger.Warn("no reasoning credential, every turn will use the fallback classifier",
			zap.String("provider", cfg.ReasonerProvider))
		reasoner = nil
	case err != nil:
		logger.Fatal("reasoning backend", zap.Error(err))
	}

	var stt consultation.STTClient
	if whisper, err := agent.NewWhisperClient(cfg.OpenAIAPIKey, cfg.TranscriptionModel, cfg.OpenAIBaseURL); err != nil {
		logger.Warn("voice intake disabled", zap.Error(err))
	} else {
		stt = whisper
	}

	var tg report.TelegramClient
	if cfg.TelegramToken != "" {
		tg = telegram.NewClient(cfg.TelegramToken)
	}
	if !cfg.CaregiverEnabled() {
		logger.Info("caregiver channel not configured, alerts and sharing disabled")
	}

	// 3. Services
	analyzer := analysis.NewAnalyzer(reasoner, cfg.ReasonerTimeout, logger)
	reportSvc := report.NewService(tg, cfg.CaregiverChatID, cfg.ReportFontPath, logger)
	consultationSvc := consultation.NewService(repo, safety.NewDetector(registry), analyzer, stt, reportSvc, logger)
	consultationHandler := consultation.NewHandler(consultationSvc)

	facilityHandler := facility.NewHandler(
		facility.NewClient(cfg.OverpassURLs, cfg.FacilityTimeout, cfg.FacilityBackoff, logger),
		logger,
	)
	insightHandler := insight.NewHandler(insight.NewPredictor(reasoner, cfg.ReasonerTimeout, logger), repo, logger)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, consultationHandler)
		facilityHandler.RegisterRoutes(r)
		insightHandler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	consultationSvc.Wait()
}

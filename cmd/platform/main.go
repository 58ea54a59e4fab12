package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/omnia-aid/platform/internal/audit"
	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/insights"
	"github.com/omnia-aid/platform/internal/intelligence"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/mlclient"
	"github.com/omnia-aid/platform/internal/resource"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/config"
	"github.com/omnia-aid/platform/internal/shared/database"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/logger"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	secmiddleware "github.com/omnia-aid/platform/internal/shared/middleware"
	"github.com/omnia-aid/platform/internal/visit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    events.EventBus
	Redis  *redis.Client
	Log    *zap.Logger
}

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level, "omnia-platform")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app := &App{Config: cfg, Log: log}

	// Database is required for every domain module
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("database not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	// Event bus is optional; handlers treat a nil bus as a no-op publisher
	if cfg.KurrentDB.Enabled {
		bus, err := events.Connect(cfg.KurrentDB, log)
		if err != nil {
			log.Warn("KurrentDB not available, running without event streaming", zap.Error(err))
		} else {
			app.Bus = bus
			defer bus.Close()
			log.Info("KurrentDB event bus initialized",
				zap.String("host", cfg.KurrentDB.Host), zap.Int("port", cfg.KurrentDB.Port))
		}
	}

	// Redis only backs the insight cache, which is only safe to use while the
	// bus announces the writes that invalidate it
	var insightCache insights.Cache
	if cfg.Redis.Enabled && app.Bus == nil {
		log.Warn("insight cache disabled: no event bus to invalidate it")
	} else if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis not available, insight cache disabled", zap.Error(err))
			rdb.Close()
		} else {
			app.Redis = rdb
			defer rdb.Close()
			insightCache = insights.NewRedisCache(rdb, cfg.Insights.CacheTTL)
		}
	}

	familyRepo := family.NewRepository(db.Pool)
	medicationRepo := medication.NewRepository(db.Pool)
	resourceRepo := resource.NewRepository(db.Pool)
	visitRepo := visit.NewRepository(db.Pool)

	// Scoring: external ML service first, local formula as fallback
	var external scoring.ExternalScorer
	var mlStatus intelligence.MLStatus
	var predictor intelligence.Predictor
	if cfg.ML.Enabled {
		ml := mlclient.New(cfg.ML.URL, cfg.ML.Timeout, log)
		external = ml
		mlStatus = ml
		predictor = ml
		log.Info("ML scoring service enabled", zap.String("url", cfg.ML.URL))
	}

	calc := scoring.NewCalculator(scoring.DefaultRules())
	gateway := scoring.NewGateway(
		external,
		scoring.NewEngine(calc, medicationRepo, log),
		scoring.GatewayConfig{Timeout: cfg.ML.Timeout, Concurrency: cfg.Scoring.BatchConcurrency},
		app.Bus,
		log,
	)

	insightService := insights.NewService(
		familyRepo, medicationRepo, resourceRepo,
		insights.NewEngine(calc, cfg.Insights.Concurrency, log),
		insightCache,
		log,
	)
	if err := insightService.WatchInvalidations(ctx, app.Bus); err != nil {
		log.Warn("insight cache invalidation not started", zap.Error(err))
	}

	auditRepo := audit.NewRepository(db.Pool)
	if err := auditRepo.Initialize(ctx); err != nil {
		log.Fatal("audit initialization failed", zap.Error(err))
	}
	if app.Bus != nil {
		if err := audit.NewSubscriber(auditRepo, app.Bus, log).Start(ctx); err != nil {
			log.Warn("audit subscriber failed to start", zap.Error(err))
		} else {
			log.Info("audit subscriber started")
		}
	}

	rateLimiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	r.Use(secmiddleware.InputSanitizer(10 << 20))
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		} else {
			r.Use(auth.DevUser)
		}

		visitHandler := visit.NewHandler(visitRepo, app.Bus, log)

		r.Mount("/families", family.NewHandler(familyRepo, app.Bus, log).Routes())
		r.Mount("/medications", medication.NewHandler(medicationRepo, familyRepo, app.Bus, log).Routes())
		r.Mount("/resources", resource.NewHandler(resourceRepo, app.Bus, log).Routes())
		r.Mount("/visits", visitHandler.Routes())
		r.Mount("/aids", visitHandler.AidRoutes())
		r.Mount("/intelligence", intelligence.NewHandler(familyRepo, gateway, insightService, mlStatus, predictor, log).Routes())
		r.Mount("/audit", audit.NewHandler(auditRepo).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	log.Info("server starting",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("event_bus", app.Bus != nil),
		zap.Bool("insight_cache", insightCache != nil),
		zap.Bool("ml", cfg.ML.Enabled),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}

	<-done
	log.Info("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Omnia Aid Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}
		metrics.RecordDBConnections(app.DB.OpenConns())

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Redis != nil {
			if err := app.Redis.Ping(r.Context()).Err(); err != nil {
				checks["redis"] = "not ready: " + err.Error()
			} else {
				checks["redis"] = "ready"
			}
		} else {
			checks["redis"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

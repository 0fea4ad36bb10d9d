package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/api/handlers"
	mw "github.com/memkeep/memkeep/internal/api/middleware"
	"github.com/memkeep/memkeep/internal/buildconfig"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
	"github.com/memkeep/memkeep/internal/extractor"
	"github.com/memkeep/memkeep/internal/responder"
	"github.com/memkeep/memkeep/internal/service"
	"github.com/memkeep/memkeep/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router   *chi.Mux
	Sessions *service.SessionTracker

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	conflicts := contract.NewNegationConflicts()
	memoryStore := store.NewMemoryStore(db, conflicts, logger)
	historyStore := store.NewHistoryStore(db)

	// Services
	sessions := service.NewSessionTracker(config.SessionTTL(), logger)
	decayEngine := service.NewDecayEngine(memoryStore, historyStore, logger)
	decayEngine.MaxActive = config.MaxActiveMemories()
	retrievalEngine := service.NewRetrievalEngine()
	replies := responder.New(rand.New(rand.NewSource(time.Now().UnixNano())))

	turnSvc := service.NewTurnService(
		extractor.New(logger),
		memoryStore,
		decayEngine,
		retrievalEngine,
		sessions,
		replies,
		logger,
	)
	turnSvc.StoreTimeout = config.StoreTimeout()

	// Handlers
	chatHandler := handlers.NewChatHandler(turnSvc)
	memoryHandler := handlers.NewMemoryHandler(turnSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sessions:  sessions,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db, turnSvc))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", chatHandler.Chat)
		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memoryHandler.List)
			r.Get("/search", memoryHandler.Search)
			r.Get("/recent", memoryHandler.Recent)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool, svc *service.TurnService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}

		stats, err := svc.Health(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":                "healthy",
			"total_active_memories": stats.TotalActiveMemories,
			"active_sessions":       stats.ActiveSessions,
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure implementations satisfy interfaces at compile time.
var (
	_ domain.MemoryStore      = (*store.MemoryStore)(nil)
	_ domain.HistoryStore     = (*store.HistoryStore)(nil)
	_ domain.ConflictDetector = (*contract.NegationConflicts)(nil)
	_ domain.SessionTracker   = (*service.SessionTracker)(nil)
	_ service.Extractor       = (*extractor.Extractor)(nil)
	_ service.ReplyGenerator  = (*responder.Responder)(nil)
)

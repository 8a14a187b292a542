// Package api serves the tracker's local HTTP interface: read views over the
// aggregation engine, category and filter management, settings, pause
// control, import/export and a WebSocket feed of the current segment.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
	"atracker/internal/health"
	"atracker/internal/logging"
	"atracker/internal/metrics"
	"atracker/internal/pattern"
)

// Store is the storage surface the API writes through.
type Store interface {
	Categories(ctx context.Context) ([]activity.Category, error)
	Category(ctx context.Context, id string) (*activity.Category, error)
	CreateCategory(ctx context.Context, c *activity.Category) error
	UpdateCategory(ctx context.Context, c *activity.Category) error
	DeleteCategory(ctx context.Context, id string) error
	ReorderCategories(ctx context.Context, ids []string) error
	ReplaceCategories(ctx context.Context, cats []activity.Category) error

	FilterRules(ctx context.Context) ([]activity.FilterRule, error)
	FilterRule(ctx context.Context, id string) (*activity.FilterRule, error)
	CreateFilterRule(ctx context.Context, r *activity.FilterRule) error
	UpdateFilterRule(ctx context.Context, r *activity.FilterRule) error
	DeleteFilterRule(ctx context.Context, id string) error
	ReorderFilterRules(ctx context.Context, ids []string) error
	ReplaceFilterRules(ctx context.Context, rules []activity.FilterRule) error

	Settings(ctx context.Context) (map[string]string, error)
	SetSettings(ctx context.Context, kv map[string]string) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error

	Path() string
}

// Config holds the listener settings.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MetricsEnabled bool
	// PushInterval is the WebSocket refresh period. Zero reads the stored
	// poll interval on every push.
	PushInterval time.Duration
	// PushRate caps WebSocket messages per second per client.
	PushRate float64
}

// DefaultConfig listens on localhost:8932.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8932",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		MetricsEnabled: true,
		PushRate:       2,
	}
}

// Deps are the components the handlers use.
type Deps struct {
	Store    Store
	Engine   *aggregate.Engine
	Current  *activity.Current
	Health   *health.Checker
	Metrics  *metrics.Metrics
	Patterns *pattern.Cache
	Logger   *logging.Logger
	DeviceID string
}

// Server is the HTTP API.
type Server struct {
	cfg      Config
	deps     Deps
	pauser   *activity.Pauser
	validate *validator.Validate
	router   *gin.Engine
	http     *http.Server
	logger   *logging.Logger

	changeMu  sync.Mutex
	changed   chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the router. Call ListenAndServe or use Handler directly.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Current == nil {
		deps.Current = &activity.Current{}
	}
	if cfg.PushRate <= 0 {
		cfg.PushRate = 2
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		pauser:   activity.NewPauser(deps.Store, deps.Engine.Now),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   deps.Logger.WithComponent("api"),
		changed:  make(chan struct{}),
		closing:  make(chan struct{}),
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(s.requestID(), s.accessLog(), gin.CustomRecovery(s.recover))
	s.routes(r)
	s.router = r

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	if s.deps.Health != nil {
		r.GET("/healthz", gin.WrapH(s.deps.Health.LivenessHandler()))
		r.GET("/readyz", gin.WrapH(s.deps.Health.ReadinessHandler()))
	}
	if s.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/current", s.handleCurrent)
		api.GET("/ws", s.handleWS)

		// Views
		api.GET("/events", s.handleEvents)
		api.GET("/summary", s.handleSummary)
		api.GET("/timeline", s.handleTimeline)
		api.GET("/history", s.handleHistory)
		api.GET("/focus", s.handleFocus)
		api.GET("/categories/totals", s.handleCategoryTotals)

		// Categories
		api.GET("/categories", s.handleListCategories)
		api.POST("/categories", s.handleCreateCategory)
		api.POST("/categories/reorder", s.handleReorderCategories)
		api.PUT("/categories/:id", s.handleUpdateCategory)
		api.DELETE("/categories/:id", s.handleDeleteCategory)

		// Filter rules
		api.GET("/filters", s.handleListFilters)
		api.POST("/filters", s.handleCreateFilter)
		api.POST("/filters/reorder", s.handleReorderFilters)
		api.PUT("/filters/:id", s.handleUpdateFilter)
		api.DELETE("/filters/:id", s.handleDeleteFilter)

		// Settings and pause
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)
		api.POST("/pause", s.handlePause)
		api.POST("/resume", s.handleResume)

		// Transfer
		api.GET("/export", s.handleExport)
		api.POST("/import", s.handleImport)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.logger.Info("api listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.closeOnce.Do(func() { close(s.closing) })

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}

// notify wakes WebSocket clients after a state change made through the API.
func (s *Server) notify() {
	s.changeMu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.changeMu.Unlock()
}

func (s *Server) changes() <-chan struct{} {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()
	return s.changed
}

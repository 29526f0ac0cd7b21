package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"ledgerlens/internal/config"
	"ledgerlens/internal/datastore"
	"ledgerlens/internal/datastore/backends"
	"ledgerlens/internal/detection"
	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/formats"
	"ledgerlens/internal/infrastructure"
	customMiddleware "ledgerlens/internal/middleware"
	"ledgerlens/internal/services"
	handlers "ledgerlens/internal/transport/http"
	"ledgerlens/pkg/contracts"
)

// AppName is reported in startup logs
const AppName = "LedgerLens"

// Application represents the main application container
type Application struct {
	Config   *config.Config
	Router   *chi.Mux
	Server   *http.Server
	Logger   *slog.Logger
	Store    datastore.Backend
	Datasets *services.DatasetService
	Health   *services.HealthService
	Tracing  *infrastructure.Tracing
	// Metrics is nil when metrics are disabled
	Metrics *infrastructure.Metrics
}

// NewApplication loads configuration from configPath (or the usual
// locations when empty), initializes the global logger and builds the
// application
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version))

	return New(context.Background(), cfg, logger)
}

// New wires the application from an already loaded configuration
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	a := &Application{Config: cfg, Logger: logger}

	tracing, err := infrastructure.InitTracing(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.Tracing = tracing

	if cfg.Telemetry.MetricsEnabled {
		metrics, err := infrastructure.NewMetrics(cfg.Telemetry.ServiceName)
		if err != nil {
			a.release(ctx)
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		a.Metrics = metrics
	}

	if err := a.initializeServices(ctx); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices builds the parser, detector, datastore backend and
// services in dependency order
func (a *Application) initializeServices(ctx context.Context) error {
	convention, err := formats.ParseDateConvention(a.Config.Detection.DateConvention)
	if err != nil {
		return apperrors.NewConfigError("detection.date_convention", err)
	}
	parser := formats.New(formats.WithDateConvention(convention))

	detCfg := detection.Config{
		SampleSize:    a.Config.Detection.SampleSize,
		MinConfidence: a.Config.Detection.MinConfidence,
	}
	if err := detCfg.Validate(); err != nil {
		return apperrors.NewConfigError("detection", err)
	}
	detector := detection.New(parser, detCfg)

	opts := []datastore.Option{datastore.WithParser(parser), datastore.WithDetector(detector)}
	if a.Metrics != nil {
		opts = append(opts, datastore.WithMetrics(a.Metrics))
	}
	store, err := backends.Open(ctx, a.Config.Storage, a.Logger, opts...)
	if err != nil {
		return err
	}
	a.Store = store

	a.Datasets = services.NewDatasetService(store, detector, a.Tracing.Tracer(), a.Logger)
	a.Health = services.NewHealthService(contracts.Version, a.Config.Storage.Backend, store, a.Logger)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apperrors.NewErrorHandler(a.Logger, false)

	// RequestID → RealIP → Telemetry → Logger → Recovery
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)
	var observer customMiddleware.HTTPObserver
	if a.Metrics != nil {
		observer = a.Metrics
	}
	r.Use(customMiddleware.Telemetry(a.Tracing.Tracer(), observer))
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(apperrors.RecoveryMiddleware(errorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
	r.Get("/healthz", healthHandler.ReadinessCheck)
	r.Get("/healthz/live", healthHandler.LivenessCheck)

	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics.Handler())
	}

	a.setupAPIRoutes(r, errorHandler)
	a.Router = r
}

// setupAPIRoutes configures the versioned API; only it is rate limited
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apperrors.ErrorHandler) {
	r.Route("/api/v1", func(r chi.Router) {
		if rl := a.Config.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger, errorHandler).Handler)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))

		datasetHandler := handlers.NewDatasetHandler(
			a.Datasets,
			customMiddleware.NewValidator(),
			a.Logger,
			errorHandler,
			a.Config.Server.MaxUploadBytes,
		)
		r.Mount("/datasets", datasetHandler.Routes())
		r.Post("/analyze", datasetHandler.Analyze)
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start serves HTTP in the background. A listener failure cancels ctx
// through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("commit", contracts.GitCommit),
		slog.Int("port", a.Config.Server.Port),
		slog.String("storage", a.Config.Storage.Backend),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
	return nil
}

// Stop gracefully stops the server, then releases the store and the
// telemetry providers
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}
	errs = append(errs, a.release(shutdownCtx)...)

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return errors.Join(errs...)
}

// release closes whatever New managed to build
func (a *Application) release(ctx context.Context) []error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}
	if a.Metrics != nil {
		if err := a.Metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown error: %w", err))
		}
	}
	if a.Tracing != nil {
		if err := a.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown error: %w", err))
		}
	}
	return errs
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "server stopped unexpectedly")
	}

	// the run context may already be cancelled
	return a.Stop(context.Background())
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"hudlink/internal/config"
	"hudlink/internal/dataprocessing"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/files"
	"hudlink/internal/infrastructure"
	customMiddleware "hudlink/internal/middleware"
	"hudlink/internal/operations"
	"hudlink/internal/services"
	"hudlink/internal/store"
	handlers "hudlink/internal/transport/http"
	"hudlink/internal/validation"
	"hudlink/pkg/contracts"
)

const (
	AppName = "hudlink"

	defaultShutdownTimeout = 30 * time.Second
)

// Application wires configuration, observability, the unit pipeline and the
// HTTP surface together
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Manager       *operations.Manager
	RunService    *services.RunService
	HealthService *services.HealthService
	Inputs        *validation.FileValidator
	Router        *chi.Mux
	Server        *http.Server

	store       *store.PostgresSink
	logCloser   io.Closer
	stopTimeout time.Duration
}

// NewApplication loads the configuration, installs the logger and builds the
// application
func NewApplication(ctx context.Context, opts config.LoadOptions) (*Application, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := New(ctx, cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.logCloser = closer
	return a, nil
}

// New builds the application from an already loaded configuration
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigError("configuration is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.Int("workers", cfg.Workers.Count),
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("output_dir", cfg.Paths.OutputDir))

	inputs := validation.NewFileValidator(cfg.Paths, logger)
	if err := inputs.ValidateOutputDirectory(cfg.Paths.OutputDir); err != nil {
		return nil, err
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Inputs:        inputs,
		stopTimeout:   cfg.Server.ShutdownTimeout,
	}

	if err := a.initializeServices(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices builds the unit pipeline and the services on top of it
func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config

	tracer, err := operations.NewOperationTracer(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to initialize operation tracer: %w", err)
	}

	source := dataprocessing.NewFileSource(cfg.Paths, cfg.Pipeline.AdditionalVariables, a.Logger)
	var sinks []operations.Sink
	var pinger services.Pinger
	if cfg.Store.Enabled() {
		sink, err := store.NewPostgresSink(ctx, cfg.Store.DSN, cfg.Store.Table, a.Logger)
		if err != nil {
			return err
		}
		a.store = sink
		pinger = sink
		sinks = append(sinks, sink)
		a.Logger.InfoContext(ctx, "summary store enabled", slog.String("table", cfg.Store.Table))
	}
	// the directory swap is the unit's last visible action
	sinks = append(sinks, files.NewManager(cfg.Paths, nil, a.Logger))

	registry, err := operations.NewPipeline(source, sinks...)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	opConfig := operations.NewConfig()
	opConfig.UnitTimeout = cfg.Workers.UnitTimeout
	a.Manager = operations.NewManager(registry, opConfig, tracer, a.Logger)

	a.RunService = services.NewRunService(cfg.Pipeline, cfg.Workers.Count, a.Manager, a.Logger)
	a.HealthService = services.NewHealthService(cfg.Paths, a.RunService, pinger, a.Logger)
	return nil
}

// setupRouter mounts the API. Middleware order: RequestID, RealIP, OTel,
// Logger, Recoverer, SecurityHeaders, RateLimit, Timeout.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	errorHandler := apperrors.NewErrorHandler(a.Logger, a.Config.Logging.Level == "debug")
	bodies := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StripSlashes)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/healthz", healthHandler.LivenessCheck)
	r.Get("/readyz", healthHandler.ReadinessCheck)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(errorHandler.Middleware)
		r.Use(customMiddleware.SecurityHeaders)

		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/version", healthHandler.Version)
			r.Mount("/runs", handlers.NewRunsHandler(a.RunService, bodies, errorHandler, a.Logger).Routes())
			r.Mount("/outputs", handlers.NewOutputsHandler(files.NewDiscovery(a.Config.Paths.OutputDir), errorHandler, a.Logger).Routes())
			r.Mount("/inputs", handlers.NewInputsHandler(a.Inputs, errorHandler, a.Logger).Routes())
		})
	})

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start serves HTTP in the background. A listener failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	if status := a.HealthService.ReadinessCheck(ctx); status.Status != "ready" {
		a.Logger.WarnContext(ctx, "startup readiness check failed", slog.Any("services", status.Services))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "server started", slog.String("address", a.Server.Addr))
	return nil
}

// Stop shuts the server down, waits for active runs and releases resources
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	timeout := a.stopTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close cancels active runs and releases the store, the OpenTelemetry
// providers and the log file
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.RunService != nil {
		if err := a.RunService.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("run service shutdown: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		a.Logger.ErrorContext(ctx, "shutdown finished with errors", slog.String("error", errors.Join(errs...).Error()))
	} else {
		a.Logger.InfoContext(ctx, "application shutdown complete")
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("log close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run serves until SIGINT/SIGTERM or a listener failure
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
	}

	return a.Stop(context.Background())
}

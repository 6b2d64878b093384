package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"hudlink/internal/config"
	"hudlink/internal/validation"
	"hudlink/pkg/contracts"
)

// Pinger reports whether an optional dependency such as the summary store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthService provides health check functionality
type HealthService struct {
	paths     config.PathsConfig
	files     *validation.FileValidator
	runs      *RunService
	store     Pinger
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a new health service. A nil store skips the store check.
func NewHealthService(paths config.PathsConfig, runs *RunService, store Pinger, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		paths:     paths,
		files:     validation.NewFileValidator(paths, logger),
		runs:      runs,
		store:     store,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	active := 0
	if hs.runs != nil {
		active = hs.runs.Active()
	}
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":      time.Since(hs.startTime).Seconds(),
			"go_version":  runtime.Version(),
			"goroutines":  runtime.NumGoroutine(),
			"active_runs": active,
		},
	}
}

// ReadinessCheck verifies the data and output directories and the store
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"data":   dirHealth(hs.files.ValidateInputDirectory(hs.paths.DataDir)),
			"output": dirHealth(hs.files.ValidateOutputDirectory(hs.paths.OutputDir)),
		},
	}
	if hs.store != nil {
		status.Services["store"] = hs.checkStore(ctx)
	}
	if hs.runs == nil {
		status.Services["runs"] = ServiceHealth{Status: "not_ready", Message: "run service not initialized"}
	}

	for name, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("dependency", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hs.store.PingContext(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("store unreachable: %v", err)}
	}
	return ServiceHealth{Status: "ready"}
}

func dirHealth(err error) ServiceHealth {
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}

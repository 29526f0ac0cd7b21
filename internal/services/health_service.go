package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"ledgerlens/pkg/contracts/domain"
)

// DatasetLister is the part of the datastore the health checks need
type DatasetLister interface {
	ListDatasets(ctx context.Context) ([]domain.Metadata, error)
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	backend   string
	store     DatasetLister
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Runtime   map[string]any `json:"runtime,omitempty"`
	Storage   *StorageHealth `json:"storage,omitempty"`
}

// StorageHealth describes the datastore as seen by the readiness check
type StorageHealth struct {
	Backend  string `json:"backend"`
	Status   string `json:"status"`
	Datasets int    `json:"datasets"`
	Rows     int    `json:"rows"`
	Message  string `json:"message,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version, backend string, store DatasetLister, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		backend:   backend,
		store:     store,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// ReadinessCheck lists the datasets to prove the store answers
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Storage:   &StorageHealth{Backend: hs.backend, Status: "ready"},
	}

	metas, err := hs.store.ListDatasets(ctx)
	if err != nil {
		hs.logger.WarnContext(ctx, "readiness check failed", slog.String("error", err.Error()))
		status.Status = "not_ready"
		status.Storage.Status = "unavailable"
		status.Storage.Message = err.Error()
		return status
	}
	status.Storage.Datasets = len(metas)
	for _, m := range metas {
		status.Storage.Rows += m.Rows
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

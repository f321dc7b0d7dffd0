// Package health provides health check endpoints for the API server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck manages health check functionality.
type HealthCheck struct {
	store         Pinger
	logger        *zap.Logger
	mu            sync.RWMutex
	ready         bool
	lastCheck     time.Time
	checkInterval time.Duration
	stop          chan struct{}
}

// NewHealthCheck creates a new HealthCheck instance and starts a
// background probe against the resource store.
func NewHealthCheck(store Pinger, logger *zap.Logger) *HealthCheck {
	hc := &HealthCheck{
		store:         store,
		logger:        logger,
		ready:         false,
		checkInterval: 5 * time.Second,
		stop:          make(chan struct{}),
	}

	go hc.backgroundCheck()

	return hc
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /_health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK if the resource store is reachable.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hc.mu.RLock()
	isReady := hc.ready
	hc.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if isReady {
		resp := ReadinessResponse{
			Status: "ready",
			Checks: map[string]string{
				"store": "healthy",
			},
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
		return
	}

	// Perform a fresh check if not ready
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := hc.store.Ping(ctx); err != nil {
		resp := ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{
				"store": "unhealthy",
			},
			Error: err.Error(),
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(resp)
		return
	}

	hc.mu.Lock()
	hc.ready = true
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	resp := ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{
			"store": "healthy",
		},
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// backgroundCheck performs periodic health checks.
func (hc *HealthCheck) backgroundCheck() {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := hc.store.Ping(ctx)
		cancel()

		hc.mu.Lock()
		if err != nil {
			hc.ready = false
			hc.logger.Warn("health check failed", zap.Error(err))
		} else {
			hc.ready = true
		}
		hc.lastCheck = time.Now()
		hc.mu.Unlock()
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}

// Close stops the background probe.
func (hc *HealthCheck) Close() {
	close(hc.stop)
}

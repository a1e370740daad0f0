// Package server wires the HTTP surface: admission gate, API routes,
// health checks, and metrics.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthHandler serves liveness and readiness checks. The liveness path is
// excluded from rate limiting by the admission gate configuration.
type HealthHandler struct {
	db     *sql.DB
	redis  redis.UniversalClient
	logger *zap.Logger
	start  time.Time
}

// HealthStatus is the health check response body
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler creates a health handler
func NewHealthHandler(db *sql.DB, rdb redis.UniversalClient, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		db:     db,
		redis:  rdb,
		logger: logger,
		start:  time.Now(),
	}
}

// Health handles GET /healthz - basic liveness
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.start).Round(time.Second).String(),
	})
}

// Ready handles GET /healthz/ready - checks backing stores
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	body := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
	if status != http.StatusOK {
		body.Status = "degraded"
		h.logger.Warn("readiness check failed", zap.Any("checks", checks))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

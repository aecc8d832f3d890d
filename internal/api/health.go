package api

import (
	"context"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Watcher       *WatcherStatusData `json:"watcher,omitempty"`
}

// WatcherStatusData represents the status of the inbox watcher.
type WatcherStatusData struct {
	Status         string `json:"status"` // "starting", "backfilling", "watching", "stopped"
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
	FilesFailed    int64  `json:"files_failed"`
}

// HealthChecker is implemented by the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus is implemented by the MQTT client.
type ConnectionStatus interface {
	IsConnected() bool
}

// WatcherStatusSource is implemented by the inbox watcher.
type WatcherStatusSource interface {
	Status() *WatcherStatusData
}

type HealthHandler struct {
	db        HealthChecker
	mqtt      ConnectionStatus
	watcher   WatcherStatusSource
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health handler. Any dependency may be nil,
// in which case its check reports "not_configured".
func NewHealthHandler(db HealthChecker, mqtt ConnectionStatus, watcher WatcherStatusSource, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// File watcher check
	var ws *WatcherStatusData
	if h.watcher != nil {
		ws = h.watcher.Status()
	}
	if ws != nil {
		checks["file_watcher"] = ws.Status
	} else {
		checks["file_watcher"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Watcher:       ws,
	})
}

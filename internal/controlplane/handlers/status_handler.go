package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/version"
)

type StatusResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"ts"`
	Version   string    `json:"version"`
	Revision  string    `json:"revision"`
	BuildDate string    `json:"buildDate"`
	Sync      *SyncInfo `json:"sync"`
}

type SyncInfo struct {
	Status    string `json:"status"`
	Running   bool   `json:"running"`
	LastRunID string `json:"lastRunId,omitempty"`
	LastRunAt string `json:"lastRunAt,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Entries   int    `json:"entries"`
	DryRun    bool   `json:"dryRun,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

type StatusHandler struct {
	svc SyncService
}

func NewStatusHandler(svc SyncService) *StatusHandler {
	return &StatusHandler{svc: svc}
}

// Status reports the build and where the syncer currently is.
func (h *StatusHandler) Status(c *gin.Context) {
	if h.svc == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeUnknownError, errors.New("syncer not initialized"))
		return
	}

	snap := h.svc.Snapshot()
	info := &SyncInfo{
		Status:    string(snap.Status),
		Running:   snap.Running,
		LastError: snap.LastError,
	}
	if !snap.LastRunAt.IsZero() {
		info.LastRunAt = snap.LastRunAt.UTC().Format(time.RFC3339)
	}
	if run := snap.LastRun; run != nil {
		info.LastRunID = run.RunID
		info.Duration = run.Duration.String()
		info.DryRun = run.DryRun
		if run.Steps != nil {
			info.Entries = run.Steps.TotalCount
		}
	}

	c.PureJSON(http.StatusOK, &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		Sync:      info,
	})
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

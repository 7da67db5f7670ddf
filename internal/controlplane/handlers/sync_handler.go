package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/sync"
)

type PlanEntry struct {
	Key      string        `json:"key"`
	Decision sync.Decision `json:"decision"`
	Branch   int           `json:"branch"`
	Category string        `json:"category"`
}

type PlanResponse struct {
	RunID      string      `json:"runId"`
	DryRun     bool        `json:"dryRun"`
	TotalCount int         `json:"totalCount"`
	Entries    []PlanEntry `json:"entries"`
}

type SyncNowResponse struct {
	Code   string `json:"code"`
	Queued bool   `json:"queued"`
}

type SyncHandler struct {
	svc SyncService
}

func NewSyncHandler(svc SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

var categories = map[string]sync.Category{
	sync.CategoryNoop.String():           sync.CategoryNoop,
	sync.CategoryFolderCreation.String(): sync.CategoryFolderCreation,
	sync.CategoryDeletion.String():       sync.CategoryDeletion,
	sync.CategoryTransfer.String():       sync.CategoryTransfer,
}

// Plan returns the decisions of the last run, optionally narrowed with ?category=.
func (h *SyncHandler) Plan(c *gin.Context) {
	var want *sync.Category
	if name := c.Query("category"); name != "" {
		category, ok := categories[name]
		if !ok {
			AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("unknown category %q", name))
			return
		}
		want = &category
	}

	run := h.svc.Snapshot().LastRun
	if run == nil || run.Plan == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNoRunYet, errors.New("no plan has been computed yet"))
		return
	}

	resp := &PlanResponse{
		RunID:   run.RunID,
		DryRun:  run.DryRun,
		Entries: make([]PlanEntry, 0, len(run.Plan)),
	}
	if run.Steps != nil {
		resp.TotalCount = run.Steps.TotalCount
	}
	for _, key := range run.Plan.SortedKeys() {
		m := run.Plan[key]
		category := m.Decision.Category()
		if want != nil && category != *want {
			continue
		}
		resp.Entries = append(resp.Entries, PlanEntry{
			Key:      key,
			Decision: m.Decision,
			Branch:   m.DecisionBranch,
			Category: category.String(),
		})
	}

	c.PureJSON(http.StatusOK, resp)
}

// Now queues a run. A run already queued absorbs the request.
func (h *SyncHandler) Now(c *gin.Context) {
	queued := h.svc.RequestRun()
	c.PureJSON(http.StatusAccepted, &SyncNowResponse{
		Code:   CodeOk,
		Queued: queued,
	})
}

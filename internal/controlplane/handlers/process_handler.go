package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"
)

type ProcessStats struct {
	// Process Name
	ProcessName string `json:"processName"`
	PID         int32  `json:"pid"`
	// Percentage of total CPU the syncer is using
	CPUPercent float64 `json:"cpuPercent"`
	NumThreads int32   `json:"numThreads"`
	// Percentage of total RAM the syncer is using
	MemoryPercent float32 `json:"memoryPercent"`
	// Resident set size in bytes
	MemoryRSS uint64 `json:"memoryRss"`
	// How long the syncer has been running in milliseconds
	Uptime int64 `json:"uptime"`
}

// NewProcessStats collects what it can. Fields the platform does not expose stay zero.
func NewProcessStats(p *process.Process) (*ProcessStats, error) {
	processName, err := p.Name()
	if err != nil {
		return nil, fmt.Errorf("failed to get process name: %w", err)
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		cpuPercent = 0
	}

	numThreads, err := p.NumThreads()
	if err != nil {
		numThreads = 0
	}

	memoryPercent, err := p.MemoryPercent()
	if err != nil {
		memoryPercent = 0
	}

	var rss uint64
	if memoryInfo, err := p.MemoryInfo(); err == nil && memoryInfo != nil {
		rss = memoryInfo.RSS
	}

	var uptime int64
	if createTime, err := p.CreateTime(); err == nil {
		uptime = time.Now().UnixMilli() - createTime
	}

	return &ProcessStats{
		ProcessName:   processName,
		PID:           p.Pid,
		CPUPercent:    cpuPercent,
		NumThreads:    numThreads,
		MemoryPercent: memoryPercent,
		MemoryRSS:     rss,
		Uptime:        uptime,
	}, nil
}

// Process reports resource usage of the running syncer.
func Process(c *gin.Context) {
	p, err := process.NewProcessWithContext(c.Request.Context(), int32(os.Getpid()))
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	stats, err := NewProcessStats(p)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.PureJSON(http.StatusOK, stats)
}

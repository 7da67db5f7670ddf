package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/sync"
)

const (
	CodeOk              string = "OK"
	ErrCodeBadRequest   string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError string = "ERR_UNKNOWN_ERROR"
	ErrCodeNoRunYet     string = "ERR_NO_RUN_YET"
)

// SyncService is the part of the syncer the control plane drives.
type SyncService interface {
	Snapshot() sync.Snapshot
	RequestRun() bool
}

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err) //nolint:errcheck
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

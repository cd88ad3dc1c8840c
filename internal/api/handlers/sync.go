package handlers

import (
	"context"
	"net/http"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SyncTrigger queues a sync run and returns its run ID.
type SyncTrigger interface {
	RequestSync(ctx context.Context, channel string) (string, error)
}

type StatusSource interface {
	Latest() []*syncer.Report
}

type SyncHandler struct {
	trigger  SyncTrigger
	status   StatusSource
	channels []config.ChannelConfig
	limiter  *rate.Limiter
	logger   *logger.Logger
}

// NewSyncHandler limits manual triggers to limiter's rate across all channels.
func NewSyncHandler(trigger SyncTrigger, status StatusSource, channels []config.ChannelConfig, limiter *rate.Limiter, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		trigger:  trigger,
		status:   status,
		channels: channels,
		limiter:  limiter,
		logger:   logger,
	}
}

// Trigger queues an asynchronous run for the channel.
func (h *SyncHandler) Trigger(c *gin.Context) {
	name := c.Param("channel")
	if _, ok := config.FindChannel(h.channels, name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many sync requests, try again later"})
		return
	}

	runID, err := h.trigger.RequestSync(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to queue sync for %s: %v", name, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue sync"})
		return
	}

	h.logger.Info("Queued sync %s for channel %s", runID, name)
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "channel": name})
}

// Status returns the last known report of every channel.
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.status.Latest()})
}

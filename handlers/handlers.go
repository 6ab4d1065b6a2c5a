// Package handlers exposes the running engine over a small HTTP control
// API: status, pause/resume, stop, and Prometheus metrics. The CLI's
// status/pause/resume/stop subcommands are clients of this surface.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polymarket-copytrader/models"
)

// Engine is the slice of the orchestrator the control API drives.
type Engine interface {
	Status() models.EngineStatus
	Pause(name string) bool
	Resume(name string) bool
	Stop()
}

// Handler holds the control API handlers.
type Handler struct {
	engine Engine
}

// NewHandler builds the handler set.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/status", h.Status)
	r.POST("/pause", h.Pause)
	r.POST("/resume", h.Resume)
	r.POST("/stop", h.StopEngine)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Status returns the live engine status snapshot.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// Pause suspends mirroring for one trader (?trader=NAME).
func (h *Handler) Pause(c *gin.Context) {
	h.toggle(c, h.engine.Pause)
}

// Resume re-enables mirroring for one trader (?trader=NAME).
func (h *Handler) Resume(c *gin.Context) {
	h.toggle(c, h.engine.Resume)
}

func (h *Handler) toggle(c *gin.Context, fn func(string) bool) {
	name := c.Query("trader")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trader query parameter required"})
		return
	}
	if !fn(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trader not found: " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "trader": name})
}

// StopEngine begins a graceful shutdown.
func (h *Handler) StopEngine(c *gin.Context) {
	h.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"ok": true, "stopping": true})
}

package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reconcile/backend/internal/infrastructure/persistence"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// DatabaseHealth is the slice of the database layer the readiness endpoint
// reports on. *persistence.Database satisfies it.
type DatabaseHealth interface {
	Ping() error
	Stats() (persistence.ConnectionStats, error)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	db        DatabaseHealth
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db DatabaseHealth) *SystemHandler {
	return &SystemHandler{
		db:        db,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name      string `json:"name" example:"Reconcile Backend API"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "Reconcile Backend API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
// @name HandlerPingResponse
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Description  Simple ping endpoint to check if the API is responsive
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

// PoolStats reports database connection pool counters
// @name HandlerPoolStats
type PoolStats struct {
	MaxOpenConnections int   `json:"max_open_connections" example:"25"`
	OpenConnections    int   `json:"open_connections" example:"3"`
	InUse              int   `json:"in_use" example:"1"`
	Idle               int   `json:"idle" example:"2"`
	WaitCount          int64 `json:"wait_count" example:"0"`
	WaitDurationMS     int64 `json:"wait_duration_ms" example:"0"`
	MaxIdleClosed      int64 `json:"max_idle_closed" example:"0"`
	MaxIdleTimeClosed  int64 `json:"max_idle_time_closed" example:"0"`
	MaxLifetimeClosed  int64 `json:"max_lifetime_closed" example:"0"`
}

// HealthResponse represents the readiness check response
// @name HandlerHealthResponse
type HealthResponse struct {
	Status    string     `json:"status" example:"healthy"`
	Database  string     `json:"database" example:"up"`
	Pool      *PoolStats `json:"pool,omitempty"`
	Uptime    string     `json:"uptime" example:"1h30m45s"`
	Timestamp string     `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Health godoc
// @ID           getSystemHealth
// @Summary      Readiness check
// @Description  Pings the database and reports connection pool statistics
// @Tags         system
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /system/health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "up",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if err := h.db.Ping(); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "down"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	if stats, err := h.db.Stats(); err == nil {
		resp.Pool = &PoolStats{
			MaxOpenConnections: stats.MaxOpenConnections,
			OpenConnections:    stats.OpenConnections,
			InUse:              stats.InUse,
			Idle:               stats.Idle,
			WaitCount:          stats.WaitCount,
			WaitDurationMS:     stats.WaitDuration.Milliseconds(),
			MaxIdleClosed:      stats.MaxIdleClosed,
			MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
			MaxLifetimeClosed:  stats.MaxLifetimeClosed,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers all system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
		system.GET("/ping", h.Ping)
		system.GET("/health", h.Health)
	}
}

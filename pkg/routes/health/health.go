package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// Checker handles health check endpoints
type Checker struct {
	db        database.DB
	redis     *redis.Client
	graph     *graph.Client
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker. Redis and graph are optional.
func NewChecker(db database.DB, redisClient *redis.Client, graphClient *graph.Client, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		graph:     graphClient,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult represents an individual check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status
func (c *Checker) Health(ctx echo.Context) error {
	checks := map[string]*CheckResult{}
	healthy := true

	checks["database"] = c.checkDatabase(ctx.Request().Context())
	if checks["database"].Status != "ok" {
		healthy = false
	}

	if c.redis != nil {
		checks["redis"] = c.checkRedis(ctx.Request().Context())
		if checks["redis"].Status != "ok" {
			healthy = false
		}
	}

	if c.graph != nil {
		checks["graph"] = c.checkGraph(ctx.Request().Context())
		if checks["graph"].Status != "ok" {
			healthy = false
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	return ctx.JSON(code, HealthStatus{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now().UTC(),
	})
}

// Live reports process liveness
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the service finished startup
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (c *Checker) checkDatabase(ctx context.Context) *CheckResult {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return &CheckResult{Status: "error", Message: err.Error()}
	}
	return &CheckResult{Status: "ok", Latency: fmt.Sprintf("%dms", time.Since(started).Milliseconds())}
}

func (c *Checker) checkRedis(ctx context.Context) *CheckResult {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.redis.Ping(ctx); err != nil {
		return &CheckResult{Status: "error", Message: err.Error()}
	}
	return &CheckResult{Status: "ok", Latency: fmt.Sprintf("%dms", time.Since(started).Milliseconds())}
}

func (c *Checker) checkGraph(ctx context.Context) *CheckResult {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.graph.VerifyConnectivity(ctx); err != nil {
		return &CheckResult{Status: "error", Message: err.Error()}
	}
	return &CheckResult{Status: "ok", Latency: fmt.Sprintf("%dms", time.Since(started).Milliseconds())}
}

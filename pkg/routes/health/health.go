// Package health exposes liveness and readiness endpoints with per-store
// dependency checks.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// check is one named dependency probe.
type check struct {
	name string
	ping func(ctx context.Context) error
}

// Checker serves the health endpoints. Each configured store contributes a
// probe; the database is mandatory and its absence alone reports unhealthy.
type Checker struct {
	checks    []check
	hasDB     bool
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker wires a probe for every store that is configured. Nil stores
// are skipped except the database.
func NewChecker(
	db interface{ PingContext(ctx context.Context) error },
	redis interface{ Ping(ctx context.Context) error },
	search interface{ Ping(ctx context.Context) error },
	graph interface{ VerifyConnectivity(ctx context.Context) error },
	version string,
) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
	}

	if db != nil {
		c.hasDB = true
		c.checks = append(c.checks, check{name: "database", ping: db.PingContext})
	}
	if redis != nil {
		c.checks = append(c.checks, check{name: "redis", ping: redis.Ping})
	}
	if search != nil {
		c.checks = append(c.checks, check{name: "elasticsearch", ping: search.Ping})
	}
	if graph != nil {
		c.checks = append(c.checks, check{name: "neo4j", ping: graph.VerifyConnectivity})
	}

	return c
}

// SetReady flips the readiness gate once startup has finished.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes mounts the health endpoints on the router.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/health/live", c.Live)
	e.GET("/health/ready", c.Ready)
}

// HealthStatus is the aggregate health report.
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health probes every configured store and reports 503 when any is down.
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.checks)),
		ReportedAt: time.Now(),
	}

	if !c.hasDB {
		status.Status = "unhealthy"
		status.Checks["database"] = &CheckResult{
			Status:  "unhealthy",
			Message: "database not configured",
		}
	}

	for _, chk := range c.checks {
		start := time.Now()
		if err := chk.ping(reqCtx); err != nil {
			status.Status = "unhealthy"
			status.Checks[chk.name] = &CheckResult{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Checks[chk.name] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}

// Live reports that the process is up.
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports whether startup has finished and traffic is welcome.
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

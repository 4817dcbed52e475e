// Package ophealth exposes a process health endpoint for operators:
// uptime, active device session count, and host resource usage. It is
// independent of operator bearer auth, same as the original's
// health-check surface.
package ophealth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/scootergw/gateway/internal/sysmon"
	"github.com/scootergw/gateway/pkg/session"
)

// Status is the JSON body returned by the health endpoint.
type Status struct {
	Healthy       bool    `json:"healthy"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
}

// Checker composes the data sources behind the health endpoint.
type Checker struct {
	registry  *session.Registry
	sysmon    *sysmon.Monitor
	startedAt time.Time
}

// New builds a Checker. startedAt should be the time the process began
// serving, normally captured once in main.
func New(registry *session.Registry, mon *sysmon.Monitor, startedAt time.Time) *Checker {
	return &Checker{registry: registry, sysmon: mon, startedAt: startedAt}
}

// Status computes the current health snapshot.
func (c *Checker) Status() Status {
	return Status{
		Healthy:        true,
		UptimeSeconds:  int64(time.Since(c.startedAt).Seconds()),
		ActiveSessions: c.registry.Count(),
		CPUPercent:     c.sysmon.CPUPercent(),
		MemoryMB:       c.sysmon.MemoryMB(),
	}
}

// ServeHTTP implements the GET /health endpoint.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.Status())
}

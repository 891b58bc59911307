// Package health answers /healthz on the metrics listener with the
// client's component view: session state, realtime connectivity, and the
// device store.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
)

// Status is the overall or per-component condition.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// ComponentStatus reports one component.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the full /healthz body.
type Response struct {
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Components []ComponentStatus `json:"components"`
}

// SessionInfo is the slice of the session holder the checker reads.
type SessionInfo interface {
	StateName() string
}

// StoreCheck pings the device store.
type StoreCheck func() error

// Checker builds health responses.
type Checker struct {
	version   string
	startTime time.Time
	session   SessionInfo
	storePing StoreCheck
}

// NewChecker wires a checker. session and storePing may be nil; the
// corresponding components are then omitted.
func NewChecker(version string, session SessionInfo, storePing StoreCheck) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		session:   session,
		storePing: storePing,
	}
}

// Check assembles the current component view. The client is degraded,
// never unhealthy: a down realtime channel or store still leaves REST
// usable.
func (c *Checker) Check() Response {
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
	}

	if c.session != nil {
		resp.Components = append(resp.Components, ComponentStatus{
			Name:    "session",
			Status:  StatusHealthy,
			Message: c.session.StateName(),
		})
	}

	realtime := ComponentStatus{Name: "realtime", Status: StatusHealthy, Message: "connected"}
	if !metrics.IsConnected() {
		realtime.Status = StatusDegraded
		realtime.Message = "disconnected"
		resp.Status = StatusDegraded
	}
	resp.Components = append(resp.Components, realtime)

	if c.storePing != nil {
		store := ComponentStatus{Name: "device_store", Status: StatusHealthy}
		if err := c.storePing(); err != nil {
			store.Status = StatusDegraded
			store.Message = err.Error()
			resp.Status = StatusDegraded
		}
		resp.Components = append(resp.Components, store)
	}
	return resp
}

// Handler serves the check as JSON. Degraded still answers 200; the body
// carries the detail.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Check()) // nolint:errcheck
	})
}

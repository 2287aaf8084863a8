// Package health provides relay health reporting over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the relay.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report is the detailed health report.
type Report struct {
	Status       SystemStatus `json:"status"`
	Handle       string       `json:"handle"`
	LastFrame    *time.Time   `json:"last_frame,omitempty"`
	LastFrameAge float64      `json:"last_frame_age_seconds"`
	Uptime       float64      `json:"uptime_seconds"`
}

package health

import "time"

// FrameClock reports when the upstream last sent a frame.
// *supervisor.Supervisor implements it.
type FrameClock interface {
	LastFrame() time.Time
}

// Monitor derives relay health from upstream liveness. The relay is
// degraded once no frame arrived for staleAfter and critical after five
// times that.
type Monitor struct {
	handle     string
	clock      FrameClock
	staleAfter time.Duration
	started    time.Time
	now        func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor(handle string, clock FrameClock, staleAfter time.Duration) *Monitor {
	if staleAfter <= 0 {
		staleAfter = 90 * time.Second
	}
	return &Monitor{
		handle:     handle,
		clock:      clock,
		staleAfter: staleAfter,
		started:    time.Now(),
		now:        time.Now,
	}
}

// Check builds the current health report.
func (m *Monitor) Check() Report {
	now := m.now()
	report := Report{
		Handle: m.handle,
		Uptime: now.Sub(m.started).Seconds(),
	}

	// Before the first frame, age counts from startup.
	since := m.started
	if last := m.clock.LastFrame(); !last.IsZero() {
		since = last
		report.LastFrame = &last
	}

	age := now.Sub(since)
	report.LastFrameAge = age.Seconds()

	switch {
	case age <= m.staleAfter:
		report.Status = StatusHealthy
	case age <= 5*m.staleAfter:
		report.Status = StatusDegraded
	default:
		report.Status = StatusCritical
	}

	return report
}

package web

import (
	"fmt"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/scv2-services/pkg/render"
)

// Metrics counts render jobs by outcome.
type Metrics struct {
	started  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
	frames   atomic.Int64
}

// NewMetrics returns a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe updates the counters from one job event.
func (m *Metrics) Observe(e render.Event) {
	switch e.Type {
	case render.EventStarted:
		m.started.Add(1)
	case render.EventFrame:
		m.frames.Add(1)
	case render.EventFinished:
		m.finished.Add(1)
	case render.EventFailed:
		m.failed.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	JobsStarted  int64 `json:"jobs_started"`
	JobsFinished int64 `json:"jobs_finished"`
	JobsFailed   int64 `json:"jobs_failed"`
	Frames       int64 `json:"frames_staged"`
}

// Snapshot reads the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		JobsStarted:  m.started.Load(),
		JobsFinished: m.finished.Load(),
		JobsFailed:   m.failed.Load(),
		Frames:       m.frames.Load(),
	}
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	snap := s.metrics.Snapshot()
	var clients int
	var dropped int64
	if s.hub != nil {
		clients = s.hub.ClientCount()
		dropped = s.hub.Dropped()
	}

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(fmt.Sprintf(`# HELP gifwrapper_jobs_started Render jobs started
# TYPE gifwrapper_jobs_started counter
gifwrapper_jobs_started %d

# HELP gifwrapper_jobs_finished Render jobs that produced a video
# TYPE gifwrapper_jobs_finished counter
gifwrapper_jobs_finished %d

# HELP gifwrapper_jobs_failed Render jobs that failed
# TYPE gifwrapper_jobs_failed counter
gifwrapper_jobs_failed %d

# HELP gifwrapper_frames_staged Frames written to scratch directories
# TYPE gifwrapper_frames_staged counter
gifwrapper_frames_staged %d

# HELP gifwrapper_ws_clients Connected job-event subscribers
# TYPE gifwrapper_ws_clients gauge
gifwrapper_ws_clients %d

# HELP gifwrapper_ws_dropped Job events dropped because the broadcast queue was full
# TYPE gifwrapper_ws_dropped counter
gifwrapper_ws_dropped %d
`, snap.JobsStarted, snap.JobsFinished, snap.JobsFailed, snap.Frames, clients, dropped))
}

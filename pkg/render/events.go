package render

// EventType is the stage a job event reports.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFrame    EventType = "frame"
	EventEncoding EventType = "encoding"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
)

// Event is a job progress notification. Frame is the frame index for
// EventFrame and the staged frame count for EventEncoding/EventFinished.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"job_id"`
	Kind  Kind      `json:"kind"`
	Frame int       `json:"frame,omitempty"`
	Total int       `json:"total"`
	Error string    `json:"error,omitempty"`
}

// ProgressFunc receives job events. It is called synchronously from the
// job, so it must not block.
type ProgressFunc func(Event)

func (s *Sequencer) emit(e Event) {
	if s.progress != nil {
		s.progress(e)
	}
}

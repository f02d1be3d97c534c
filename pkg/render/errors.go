package render

import (
	"errors"
	"fmt"

	"github.com/teslashibe/scv2-services/pkg/ghosting"
)

var (
	// ErrNoBackground means ghosting was requested but no background image
	// could be fetched or decoded.
	ErrNoBackground = errors.New("render: couldn't retrieve background image for ghosting")

	// ErrNoBackgroundKey means the instruction used to key the background
	// has no snapshot_ems.
	ErrNoBackgroundKey = errors.New("render: last instruction has no snapshot_ems to key the background")

	// ErrNoSnapshots is returned for jobs with nothing to render.
	ErrNoSnapshots = errors.New("render: no snapshots to render")
)

// Failure classes reported in JobError.ErrorKind.
const (
	ErrorKindBackground = "BackgroundError"
	ErrorKindGhosting   = "GhostingError"
	ErrorKindScratch    = "ScratchError"
	ErrorKindFrame      = "FrameError"
	ErrorKindEncode     = "EncodeError"
	ErrorKindInput      = "InputError"
	ErrorKindPanic      = "Panic"
)

// JobError is the structured failure of one render job.
type JobError struct {
	JobID     string
	Kind      Kind
	ErrorKind string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("render: %s job %s failed (%s): %v", e.Kind, e.JobID, e.ErrorKind, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Messages is the two-line payload returned to API callers.
func (e *JobError) Messages() []string {
	return []string{
		fmt.Sprintf("(%s) Error creating %s:", e.ErrorKind, e.Kind),
		e.Err.Error(),
	}
}

// stageError tags an error with the failure class it belongs to.
type stageError struct {
	kind string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(kind string, err error) error {
	return &stageError{kind: kind, err: err}
}

// ghostingFailure classifies an error from ghosting.Apply.
func ghostingFailure(err error) error {
	if errors.Is(err, ghosting.ErrMissingBackground) {
		return fail(ErrorKindBackground, err)
	}
	return fail(ErrorKindGhosting, err)
}

func errorKind(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.kind
	}
	return ErrorKindEncode
}

// Package render runs render jobs: it fetches snapshots, applies ghosting and
// drawing instructions, stages numbered frames in a private scratch
// directory and hands them to a video encoder.
//
// Jobs are synchronous and share no mutable state, so one Sequencer can
// serve concurrent requests.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/scv2-services/pkg/drawing"
	"github.com/teslashibe/scv2-services/pkg/video"
)

// Kind names a job type. It appears in structured error messages.
type Kind string

const (
	KindSimpleReplay     Kind = "simple replay video"
	KindFromInstructions Kind = "video from instructions"
	KindFromRawFrames    Kind = "video from b64 jpgs"
)

// DefaultFPS is the simple-replay frame rate when none is configured.
const DefaultFPS = 8

// JPEG qualities for frames staged in the scratch directory.
const (
	ghostJPEGQuality = 50
	frameJPEGQuality = 95
)

// ImageStore fetches encoded images. *dbserver.Client satisfies it.
type ImageStore interface {
	SnapshotImage(ctx context.Context, camera string, ems int64) ([]byte, error)
	BackgroundImage(ctx context.Context, camera string, targetEMS int64) ([]byte, error)
}

// Instruction pairs a snapshot with the drawing calls rendered over it.
type Instruction struct {
	SnapshotEMS *int64            `json:"snapshot_ems"`
	Drawing     []json.RawMessage `json:"drawing"`
}

// Result is a finished job.
type Result struct {
	JobID  string
	Kind   Kind
	Video  []byte
	Frames int
}

// Sequencer runs render jobs against one image store and encoder.
type Sequencer struct {
	store      ImageStore
	encoder    video.Encoder
	interp     *drawing.Interpreter
	scratchDir string
	defaultFPS float64
	progress   ProgressFunc
	logger     *slog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithScratchDir sets the parent of per-job scratch directories.
// Empty means os.TempDir().
func WithScratchDir(dir string) Option {
	return func(s *Sequencer) { s.scratchDir = dir }
}

// WithDefaultFPS sets the simple-replay frame rate.
func WithDefaultFPS(fps float64) Option {
	return func(s *Sequencer) { s.defaultFPS = fps }
}

// WithProgress registers a hook that receives job events.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Sequencer) { s.progress = fn }
}

// WithInterpreter replaces the drawing interpreter.
func WithInterpreter(i *drawing.Interpreter) Option {
	return func(s *Sequencer) { s.interp = i }
}

// New creates a Sequencer.
func New(store ImageStore, encoder video.Encoder, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:      store,
		encoder:    encoder,
		defaultFPS: DefaultFPS,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interp == nil {
		s.interp = drawing.NewInterpreter(drawing.WithLogger(s.logger))
	}
	s.logger = s.logger.With("component", "render.sequencer")
	return s
}

// job is the per-request state: an id, a kind and a scratch directory that
// only this job touches.
type job struct {
	id    string
	kind  Kind
	dir   string
	total int
	s     *Sequencer
}

// run wraps fn with scratch setup and teardown, panic recovery, progress
// events and failure logging. Every error it returns is a *JobError.
func (s *Sequencer) run(ctx context.Context, kind Kind, total int, fps float64, fn func(j *job) error) (res *Result, err error) {
	j := &job{id: uuid.NewString(), kind: kind, total: total, s: s}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fail(ErrorKindPanic, fmt.Errorf("%v", r))
		}
		if err != nil {
			jerr := &JobError{JobID: j.id, Kind: kind, ErrorKind: errorKind(err), Err: err}
			s.logger.Error("render job failed",
				"job_id", j.id,
				"kind", string(kind),
				"error_kind", jerr.ErrorKind,
				"error", err)
			s.emit(Event{Type: EventFailed, JobID: j.id, Kind: kind, Total: total, Error: err.Error()})
			res, err = nil, jerr
		}
	}()

	s.emit(Event{Type: EventStarted, JobID: j.id, Kind: kind, Total: total})

	dir, err := os.MkdirTemp(s.scratchDir, "render-"+j.id+"-")
	if err != nil {
		return nil, fail(ErrorKindScratch, fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(dir)
	j.dir = dir

	if err := fn(j); err != nil {
		return nil, err
	}

	frames, err := video.Frames(dir)
	if err != nil {
		return nil, fail(ErrorKindScratch, err)
	}

	s.emit(Event{Type: EventEncoding, JobID: j.id, Kind: kind, Frame: len(frames), Total: total})
	data, err := s.encoder.Encode(ctx, dir, fps)
	if err != nil {
		return nil, fail(ErrorKindEncode, err)
	}

	s.logger.Info("render job finished",
		"job_id", j.id,
		"kind", string(kind),
		"frames", len(frames),
		"fps", video.ClampFrameRate(fps),
		"bytes", len(data),
		"elapsed", time.Since(start))
	s.emit(Event{Type: EventFinished, JobID: j.id, Kind: kind, Frame: len(frames), Total: total})

	return &Result{JobID: j.id, Kind: kind, Video: data, Frames: len(frames)}, nil
}

// framePath is the scratch path for frame index i.
func (j *job) framePath(i int) string {
	return filepath.Join(j.dir, video.FrameName(i))
}

// writeBytes stages already-encoded image bytes as frame i.
func (j *job) writeBytes(i int, data []byte) error {
	if err := os.WriteFile(j.framePath(i), data, 0o600); err != nil {
		return fail(ErrorKindScratch, fmt.Errorf("write frame %d: %w", i, err))
	}
	j.s.emit(Event{Type: EventFrame, JobID: j.id, Kind: j.kind, Frame: i, Total: j.total})
	return nil
}

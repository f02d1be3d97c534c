// Package autodelete runs the daily data-retention pass: every camera's
// realtime data older than a cutoff is deleted on the data server.
package autodelete

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ErrUnreachable is returned by Run when the data server is down at startup.
var ErrUnreachable = errors.New("autodelete: dbserver unreachable on startup")

// Server is the deletion API of the data server. *dbserver.Client
// satisfies it.
type Server interface {
	IsAlive(ctx context.Context) bool
	WaitForConnection(ctx context.Context, attempts int, delay time.Duration) error
	CameraNames(ctx context.Context) ([]string, error)
	DeleteBefore(ctx context.Context, camera string, cutoffEMS int64) (time.Duration, error)
}

// CameraResult is one camera's delete outcome.
type CameraResult struct {
	Camera  string
	Elapsed time.Duration
	Err     error
}

// Report summarizes one deletion pass.
type Report struct {
	Cutoff  time.Time
	Cameras []CameraResult
}

// Failed counts cameras whose delete request failed.
func (r Report) Failed() int {
	n := 0
	for _, c := range r.Cameras {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Agent deletes old data on startup and/or once a day.
type Agent struct {
	server     Server
	daysToKeep float64
	onStartup  bool
	once       bool
	wakeHour   int
	jitter     time.Duration
	retryDelay time.Duration
	progress   io.Writer
	logger     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithDeleteOnStartup runs a pass before the first scheduled one.
func WithDeleteOnStartup(on bool) Option {
	return func(a *Agent) { a.onStartup = on }
}

// WithDeleteOnce runs a single pass immediately and returns.
func WithDeleteOnce(on bool) Option {
	return func(a *Agent) { a.once = on }
}

// WithProgress draws a per-camera progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(a *Agent) { a.progress = w }
}

// WithWakeHour sets the local hour of the daily pass.
func WithWakeHour(hour int) Option {
	return func(a *Agent) { a.wakeHour = hour }
}

// WithJitter sets the upper bound of the random delay added to the wake
// time, so agents on many hosts don't hit the server together.
func WithJitter(d time.Duration) Option {
	return func(a *Agent) { a.jitter = d }
}

// WithRetryDelay sets the pause between liveness checks before a pass.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Agent) { a.retryDelay = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an Agent that keeps daysToKeep days of data.
func New(server Server, daysToKeep float64, opts ...Option) *Agent {
	a := &Agent{
		server:     server,
		daysToKeep: daysToKeep,
		wakeHour:   DefaultWakeHour,
		jitter:     DefaultJitter,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		now:        time.Now,
		sleep:      sleepCtx,
		rand:       rand.Float64,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "autodelete.agent")
	return a
}

// Run checks the server once, then deletes according to the configured
// mode until ctx is cancelled. Cancellation is a clean exit.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("running autodeletion",
		"days_to_keep", a.daysToKeep,
		"delete_on_startup", a.onStartup,
		"delete_once", a.once)

	if !a.server.IsAlive(ctx) {
		return ErrUnreachable
	}

	if a.onStartup || a.once {
		if _, err := a.DeleteAll(ctx); err != nil {
			return ignoreCancel(err)
		}
	}
	if a.once {
		a.logger.Info("deletion finished")
		return nil
	}

	for {
		offset := time.Duration((1 - a.rand()) * float64(a.jitter))
		wake := NextWake(a.now(), a.wakeHour, offset)
		a.logger.Info("sleeping until next deletion", "wake", wake.Format("2006/01/02 15:04:05"))

		if err := a.SleepUntil(ctx, wake); err != nil {
			return ignoreCancel(err)
		}
		if _, err := a.DeleteAll(ctx); err != nil {
			return ignoreCancel(err)
		}
	}
}

// SleepUntil blocks until the clock passes wake, re-checking the clock
// between partial sleeps.
func (a *Agent) SleepUntil(ctx context.Context, wake time.Time) error {
	for {
		now := a.now()
		if now.After(wake) {
			return nil
		}
		if err := a.sleep(ctx, nextWait(wake.Sub(now))); err != nil {
			return err
		}
	}
}

// DeleteAll waits for the server, then deletes data older than the cutoff
// for every camera. A failing camera is logged and skipped. The returned
// error is only non-nil when ctx ends first.
func (a *Agent) DeleteAll(ctx context.Context) (Report, error) {
	if err := a.server.WaitForConnection(ctx, 0, a.retryDelay); err != nil {
		return Report{}, err
	}

	cutoff := Cutoff(a.now(), a.daysToKeep)
	report := Report{Cutoff: cutoff}
	a.logger.Info("deleting camera data", "before", cutoff.Format("2006/01/02 15:04:05"))

	cameras, err := a.server.CameraNames(ctx)
	if err != nil {
		a.logger.Error("could not list cameras", "error", err)
		return report, nil
	}

	var bar *progressbar.ProgressBar
	if a.progress != nil {
		bar = progressbar.NewOptions(len(cameras),
			progressbar.OptionSetDescription("Deleting"),
			progressbar.OptionSetWriter(a.progress),
			progressbar.OptionShowCount(),
		)
	}

	for _, camera := range cameras {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		elapsed, err := a.server.DeleteBefore(ctx, camera, cutoff.UnixMilli())
		report.Cameras = append(report.Cameras, CameraResult{Camera: camera, Elapsed: elapsed, Err: err})
		if err != nil {
			a.logger.Error("delete failed", "camera", camera, "elapsed_ms", elapsed.Milliseconds(), "error", err)
		} else {
			a.logger.Info("camera deleted", "camera", camera, "elapsed_ms", elapsed.Milliseconds())
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(a.progress)
	}
	return report, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

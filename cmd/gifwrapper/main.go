// gifwrapper: renders camera snapshots into MP4 animations for the web UI.
// Snapshots and backgrounds come from the dbserver; output is streamed back
// over HTTP and job progress is published on /ws/jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/scv2-services/internal/config"
	"github.com/teslashibe/scv2-services/internal/log"
	"github.com/teslashibe/scv2-services/pkg/dbserver"
	"github.com/teslashibe/scv2-services/pkg/hub"
	"github.com/teslashibe/scv2-services/pkg/render"
	"github.com/teslashibe/scv2-services/pkg/video"
	"github.com/teslashibe/scv2-services/pkg/web"
)

// Startup tolerates a dbserver that comes up after us.
const (
	connectAttempts = 10
	connectDelay    = 12 * time.Second
	shutdownTimeout = 5 * time.Second
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "Optional YAML config file")
	port       = flag.Int("port", 0, "HTTP server port (overrides GIFSERVER_PORT)")
	debug      = flag.Bool("debug", false, "Enable debug logging and HTTP access logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.GIFServer.Port = *port
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := dbserver.New(cfg.DBServer.URL(), dbserver.WithLogger(logger))
	if err := db.WaitForConnection(ctx, connectAttempts, connectDelay); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("starting without dbserver connection", "url", db.BaseURL(), "error", err)
	}

	encoder, err := video.New(cfg.Render.Encoder, cfg.Render.FFmpegPath, video.WithLogger(logger))
	if err != nil {
		logger.Error("encoder setup failed", "error", err)
		os.Exit(1)
	}

	jobs := hub.New("jobs", hub.WithLogger(logger))
	go jobs.Run(ctx)

	metrics := web.NewMetrics()
	seq := render.New(db, encoder,
		render.WithLogger(logger),
		render.WithScratchDir(cfg.Render.ScratchDir),
		render.WithDefaultFPS(float64(cfg.Render.DefaultFPS)),
		render.WithProgress(web.Progress(jobs, metrics, logger)),
	)

	srv := web.New(db, seq,
		web.WithLogger(logger),
		web.WithHub(jobs),
		web.WithMetrics(metrics),
		web.WithDefaultFPS(float64(cfg.Render.DefaultFPS)),
		web.WithVersion(version),
		web.WithDebug(*debug),
	)

	logger.Info("gifwrapper starting",
		"version", version,
		"addr", cfg.GIFServer.Addr(),
		"dbserver", db.BaseURL(),
		"encoder", cfg.Render.Encoder)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(cfg.GIFServer.Addr())
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// Package web exposes the rendering core over HTTP.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/scv2-services/pkg/ghosting"
	"github.com/teslashibe/scv2-services/pkg/hub"
	"github.com/teslashibe/scv2-services/pkg/render"
)

// Backend is the part of the data server the routes talk to directly.
// *dbserver.Client satisfies it.
type Backend interface {
	IsAlive(ctx context.Context) bool
	SnapshotTimes(ctx context.Context, camera string, startEMS, endEMS int64) ([]int64, error)
}

// Renderer runs render jobs. *render.Sequencer satisfies it.
type Renderer interface {
	SimpleReplay(ctx context.Context, camera string, snapshots []int64, ghost bool) (*render.Result, error)
	FromInstructions(ctx context.Context, camera string, instructions []render.Instruction, fps float64, cfg ghosting.Config) (*render.Result, error)
	FromRawFrames(ctx context.Context, frames [][]byte, fps float64) (*render.Result, error)
}

// Server is the gifwrapper HTTP service.
type Server struct {
	app      *fiber.App
	db       Backend
	renderer Renderer
	hub      *hub.Hub
	metrics  *Metrics

	defaultFPS float64
	version    string
	debug      bool
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHub serves job events on /ws/jobs.
func WithHub(h *hub.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithMetrics shares a counter set with the sequencer's progress hook.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDefaultFPS sets the frame rate used when a request omits one.
func WithDefaultFPS(fps float64) Option {
	return func(s *Server) { s.defaultFPS = fps }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithDebug enables HTTP access logging.
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// New builds the fiber app and registers every route.
func New(db Backend, r Renderer, opts ...Option) *Server {
	s := &Server{
		db:         db,
		renderer:   r,
		defaultFPS: render.DefaultFPS,
		version:    "dev",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.logger = s.logger.With("component", "web.server")

	app := fiber.New(fiber.Config{
		AppName:               "gifwrapper",
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if s.debug {
		app.Use(logger.New())
	}

	app.Get("/", s.handleHome)
	app.Get("/help", s.handleHelp)
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	app.Get("/:camera/simple-replay/:start/:end", s.handleSimpleReplay)
	app.Get("/:camera/simple-replay/:ext/:ghost/:start/:end", s.handleLegacySimpleReplay)

	anim := app.Group("/create-animation")
	anim.Get("/from-instructions", s.handleInstructionsUsage)
	anim.Post("/from-instructions", s.handleFromInstructions)
	anim.Get("/from-b64-jpgs", s.handleB64Usage)
	anim.Post("/from-b64-jpgs", s.handleFromB64)

	app.Post("/perspective/calculate-correction", s.handlePerspective)

	if s.hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/jobs", websocket.New(func(conn *websocket.Conn) {
			hub.NewClient(s.hub, conn).Run()
		}))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Progress returns the sequencer hook that feeds the metrics and, when
// present, the websocket hub.
func Progress(h *hub.Hub, m *Metrics, l *slog.Logger) render.ProgressFunc {
	return func(e render.Event) {
		m.Observe(e)
		if h == nil {
			return
		}
		if err := h.BroadcastJSON(e); err != nil {
			l.Warn("job event not broadcast", "job_id", e.JobID, "error", err)
		}
	}
}

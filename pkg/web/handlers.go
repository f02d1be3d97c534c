package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/scv2-services/pkg/ghosting"
	"github.com/teslashibe/scv2-services/pkg/perspective"
	"github.com/teslashibe/scv2-services/pkg/render"
)

const (
	msgNoDBServer    = "No connection to dbserver!"
	msgNoSnapshots   = "No snapshots in provided time range"
	msgBadTimeRange  = "Start and end times must be integer epoch ms values"
	msgMissingPost   = "Missing POST arguments. Call this route as a GET request for options"
	msgNoCamera      = "Missing camera_select!"
	msgNoInstruction = "No instructions were provided!"
	msgNoJPGs        = "No b64 jpgs were provided!"
)

// truthy reports whether a path or query flag enables something.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "enable":
		return true
	}
	return false
}

// decodeJSON reads a JSON body whatever Content-Type the client sent.
// Form and XML bodies are not accepted.
func decodeJSON(c *fiber.Ctx, v any) error {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return c.BodyParser(v)
	}
	return json.Unmarshal(c.Body(), v)
}

func errorResponse(c *fiber.Ctx, status int, msg any) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func (s *Server) handleHome(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(strings.Join([]string{
		"<title>SCV2 GIF Wrapper</title>",
		"<h1>GIF Wrapper is running: <a href='/help'>Route listing</a></h1>",
	}, "\n"))
}

// handleHelp lists the GET and POST routes, sorted by path.
func (s *Server) handleHelp(c *fiber.Ctx) error {
	methods := make(map[string][]string)
	for _, r := range s.app.GetRoutes(true) {
		if r.Method != fiber.MethodGet && r.Method != fiber.MethodPost {
			continue
		}
		if !slices.Contains(methods[r.Path], r.Method) {
			methods[r.Path] = append(methods[r.Path], r.Method)
		}
	}

	paths := make([]string, 0, len(methods))
	for p := range methods {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	lines := []string{"<title>GIF Wrapper Help</title>", "<h1>Route List:</h1>"}
	for _, p := range paths {
		m := methods[p]
		slices.Sort(m)
		lines = append(lines, fmt.Sprintf("<p><b>[%s]</b>&nbsp;&nbsp;&nbsp;%s</p>",
			strings.Join(m, ", "), displayPath(p)))
	}

	c.Type("html")
	return c.SendString(strings.Join(lines, "\n"))
}

// displayPath renders :param segments as (param).
func displayPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "(" + strings.TrimPrefix(part, ":") + ")"
		}
	}
	return strings.Join(parts, "/")
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	var clients int
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"version":    s.version,
		"dbserver":   s.db.IsAlive(c.UserContext()),
		"ws_clients": clients,
	})
}

func (s *Server) handleSimpleReplay(c *fiber.Ctx) error {
	return s.simpleReplay(c, truthy(c.Query("ghost", "true")))
}

// handleLegacySimpleReplay keeps the old URL shape alive. The extension
// segment is ignored since output is always MP4.
func (s *Server) handleLegacySimpleReplay(c *fiber.Ctx) error {
	return s.simpleReplay(c, truthy(c.Params("ghost")))
}

func (s *Server) simpleReplay(c *fiber.Ctx, ghost bool) error {
	camera := c.Params("camera")
	start, err := strconv.ParseInt(c.Params("start"), 10, 64)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, msgBadTimeRange)
	}
	end, err := strconv.ParseInt(c.Params("end"), 10, 64)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, msgBadTimeRange)
	}

	ctx := c.UserContext()
	if !s.db.IsAlive(ctx) {
		return errorResponse(c, fiber.StatusInternalServerError, msgNoDBServer)
	}

	snapshots, err := s.db.SnapshotTimes(ctx, camera, start, end)
	if err != nil {
		s.logger.Warn("snapshot listing failed", "camera", camera, "start", start, "end", end, "error", err)
	}
	if len(snapshots) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, msgNoSnapshots)
	}
	slices.Sort(snapshots)

	res, err := s.renderer.SimpleReplay(ctx, camera, snapshots, ghost)
	if err != nil {
		return s.renderError(c, err)
	}
	return sendVideo(c, res)
}

func (s *Server) handleInstructionsUsage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"camera_select": "Name of the camera whose snapshots are rendered",
		"frame_rate":    "Number of frames displayed per second of animation",
		"ghosting": fiber.Map{
			"enable":             "If true, every frame is ghosted against the background",
			"brightness_scaling": "Brightness scaling applied to the ghosted difference (should be > 1.0)",
			"blur_size":          "Controls how much blurring occurs on ghosted images",
			"pixelation_factor":  "Controls pixelation applied to ghosted images",
		},
		"instructions": "List of {snapshot_ems, drawing} entries, one per output frame, in display order",
	})
}

type instructionsRequest struct {
	CameraSelect string               `json:"camera_select"`
	FrameRate    float64              `json:"frame_rate"`
	Ghosting     ghosting.Config      `json:"ghosting"`
	Instructions []render.Instruction `json:"instructions"`
}

func (s *Server) handleFromInstructions(c *fiber.Ctx) error {
	// Omitted fields keep these values; ghosting is opt-in.
	req := instructionsRequest{FrameRate: s.defaultFPS, Ghosting: ghosting.DefaultConfig()}
	req.Ghosting.Enabled = false
	if err := decodeJSON(c, &req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, msgMissingPost)
	}
	if req.CameraSelect == "" {
		return errorResponse(c, fiber.StatusBadRequest, msgNoCamera)
	}
	if len(req.Instructions) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, msgNoInstruction)
	}

	ctx := c.UserContext()
	if !s.db.IsAlive(ctx) {
		return errorResponse(c, fiber.StatusInternalServerError, msgNoDBServer)
	}

	res, err := s.renderer.FromInstructions(ctx, req.CameraSelect, req.Instructions, req.FrameRate, req.Ghosting)
	if err != nil {
		return s.renderError(c, err)
	}
	return sendVideo(c, res)
}

func (s *Server) handleB64Usage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"frame_rate": "Number of frames displayed per second of animation",
		"b64_jpgs":   "List of base64 encoded jpgs (data URLs are accepted), in display order",
	})
}

type b64Request struct {
	FrameRate float64  `json:"frame_rate"`
	B64JPGs   []string `json:"b64_jpgs"`
}

func (s *Server) handleFromB64(c *fiber.Ctx) error {
	req := b64Request{FrameRate: s.defaultFPS}
	if err := decodeJSON(c, &req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, msgMissingPost)
	}
	if len(req.B64JPGs) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, msgNoJPGs)
	}

	frames := make([][]byte, len(req.B64JPGs))
	for i, entry := range req.B64JPGs {
		data, err := decodeB64(entry)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest,
				fmt.Sprintf("Error decoding b64 jpg (index %d): %v", i, err))
		}
		frames[i] = data
	}

	res, err := s.renderer.FromRawFrames(c.UserContext(), frames, req.FrameRate)
	if err != nil {
		return s.renderError(c, err)
	}
	return sendVideo(c, res)
}

// decodeB64 accepts a data URL or a bare base64 payload.
func decodeB64(entry string) ([]byte, error) {
	payload := entry
	if i := strings.IndexByte(entry, ','); i >= 0 {
		payload = entry[i+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
}

type perspectiveRequest struct {
	Quad any `json:"quad"`
}

func (s *Server) handlePerspective(c *fiber.Ctx) error {
	var req perspectiveRequest
	if err := decodeJSON(c, &req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, msgMissingPost)
	}

	corr, err := perspective.Calculate(req.Quad)
	if err != nil {
		var verr *perspective.ValidationError
		if errors.As(err, &verr) {
			return errorResponse(c, fiber.StatusBadRequest, verr.Msg)
		}
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(corr)
}

// renderError maps a failed job to the structured 500 payload.
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	var jerr *render.JobError
	if errors.As(err, &jerr) {
		return errorResponse(c, fiber.StatusInternalServerError, jerr.Messages())
	}
	return errorResponse(c, fiber.StatusInternalServerError, err.Error())
}

func sendVideo(c *fiber.Ctx, res *render.Result) error {
	c.Attachment("output.mp4")
	c.Set(fiber.HeaderContentType, "video/mp4")
	c.Set("X-Job-Id", res.JobID)
	return c.Send(res.Video)
}

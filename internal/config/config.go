// Package config provides configuration helpers for the scv2 services.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables (which always win).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults, matching the existing deployment.
const (
	DefaultDBServerProtocol  = "http"
	DefaultDBServerHost      = "localhost"
	DefaultDBServerPort      = 8050
	DefaultGIFServerProtocol = "http"
	DefaultGIFServerHost     = "0.0.0.0"
	DefaultGIFServerPort     = 7171
	DefaultFPS               = 8
	DefaultEncoder           = "ffmpeg"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultDaysToKeep        = 5.0
	DefaultLogLevel          = "info"
)

// DBServer locates the external data server.
type DBServer struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// URL returns protocol://host:port.
func (d DBServer) URL() string {
	return fmt.Sprintf("%s://%s:%d", d.Protocol, d.Host, d.Port)
}

// GIFServer holds the rendering service listen settings.
type GIFServer struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// Addr returns host:port for fiber's Listen.
func (g GIFServer) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Render configures the frame sequencer and encoder.
type Render struct {
	DefaultFPS int    `yaml:"default_fps"`
	Encoder    string `yaml:"encoder"` // "ffmpeg" or "opencv"
	FFmpegPath string `yaml:"ffmpeg_path"`
	ScratchDir string `yaml:"scratch_dir"` // empty means os.TempDir()
}

// AutoDelete configures the deletion agent.
type AutoDelete struct {
	DaysToKeep      float64 `yaml:"days_to_keep"`
	DeleteOnStartup bool    `yaml:"delete_on_startup"`
	DeleteOnce      bool    `yaml:"delete_once"`
}

// Config is the full service configuration.
type Config struct {
	LogLevel   string     `yaml:"log_level"`
	DBServer   DBServer   `yaml:"dbserver"`
	GIFServer  GIFServer  `yaml:"gifserver"`
	Render     Render     `yaml:"render"`
	AutoDelete AutoDelete `yaml:"autodelete"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		DBServer: DBServer{
			Protocol: DefaultDBServerProtocol,
			Host:     DefaultDBServerHost,
			Port:     DefaultDBServerPort,
		},
		GIFServer: GIFServer{
			Protocol: DefaultGIFServerProtocol,
			Host:     DefaultGIFServerHost,
			Port:     DefaultGIFServerPort,
		},
		Render: Render{
			DefaultFPS: DefaultFPS,
			Encoder:    DefaultEncoder,
			FFmpegPath: DefaultFFmpegPath,
		},
		AutoDelete: AutoDelete{
			DaysToKeep: DefaultDaysToKeep,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	var errs []error
	if c.DBServer.Port <= 0 || c.DBServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("dbserver port out of range: %d", c.DBServer.Port))
	}
	if c.GIFServer.Port <= 0 || c.GIFServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("gifserver port out of range: %d", c.GIFServer.Port))
	}
	if c.Render.DefaultFPS <= 0 {
		errs = append(errs, fmt.Errorf("default fps must be positive: %d", c.Render.DefaultFPS))
	}
	switch c.Render.Encoder {
	case "ffmpeg", "opencv":
	default:
		errs = append(errs, fmt.Errorf("unknown encoder %q (want ffmpeg or opencv)", c.Render.Encoder))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DBServer.Protocol, "DBSERVER_PROTOCOL")
	setString(&c.DBServer.Host, "DBSERVER_HOST")
	errs = append(errs, setInt(&c.DBServer.Port, "DBSERVER_PORT"))
	setString(&c.GIFServer.Protocol, "GIFSERVER_PROTOCOL")
	setString(&c.GIFServer.Host, "GIFSERVER_HOST")
	errs = append(errs, setInt(&c.GIFServer.Port, "GIFSERVER_PORT"))
	errs = append(errs, setInt(&c.Render.DefaultFPS, "DEFAULT_FPS"))
	setString(&c.Render.Encoder, "ENCODER")
	setString(&c.Render.FFmpegPath, "FFMPEG_PATH")
	setString(&c.Render.ScratchDir, "SCRATCH_DIR")
	errs = append(errs, setFloat(&c.AutoDelete.DaysToKeep, "DAYS_TO_KEEP"))
	errs = append(errs, setBool(&c.AutoDelete.DeleteOnStartup, "DELETE_ON_STARTUP"))
	errs = append(errs, setBool(&c.AutoDelete.DeleteOnce, "DELETE_ONCE"))

	c.Render.Encoder = strings.ToLower(c.Render.Encoder)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// setBool accepts the 0/1 integers used by deployment env files as well as
// the usual strconv spellings.
func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n != 0
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "DBSERVER_PROTOCOL", "DBSERVER_HOST", "DBSERVER_PORT",
		"GIFSERVER_PROTOCOL", "GIFSERVER_HOST", "GIFSERVER_PORT", "DEFAULT_FPS",
		"ENCODER", "FFMPEG_PATH", "SCRATCH_DIR", "DAYS_TO_KEEP",
		"DELETE_ON_STARTUP", "DELETE_ONCE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.DBServer.URL(); got != "http://localhost:8050" {
		t.Errorf("DBServer.URL() = %q", got)
	}
	if got := cfg.GIFServer.Addr(); got != "0.0.0.0:7171" {
		t.Errorf("GIFServer.Addr() = %q", got)
	}
	if cfg.Render.DefaultFPS != 8 {
		t.Errorf("DefaultFPS = %d, want 8", cfg.Render.DefaultFPS)
	}
	if cfg.AutoDelete.DaysToKeep != 5 {
		t.Errorf("DaysToKeep = %v, want 5", cfg.AutoDelete.DaysToKeep)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
dbserver:
  host: dbserver.local
  port: 9000
render:
  encoder: opencv
  default_fps: 12
autodelete:
  days_to_keep: 2.5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DBSERVER_PORT", "9100")
	t.Setenv("DELETE_ONCE", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.DBServer.URL(); got != "http://dbserver.local:9100" {
		t.Errorf("env should override file port, got %q", got)
	}
	if cfg.Render.Encoder != "opencv" || cfg.Render.DefaultFPS != 12 {
		t.Errorf("render section not loaded: %+v", cfg.Render)
	}
	if cfg.AutoDelete.DaysToKeep != 2.5 {
		t.Errorf("DaysToKeep = %v", cfg.AutoDelete.DaysToKeep)
	}
	if !cfg.AutoDelete.DeleteOnce {
		t.Error("DELETE_ONCE=1 should enable DeleteOnce")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non numeric port", "DBSERVER_PORT", "abc"},
		{"port out of range", "GIFSERVER_PORT", "70000"},
		{"unknown encoder", "ENCODER", "gifsicle"},
		{"zero fps", "DEFAULT_FPS", "0"},
		{"bad bool", "DELETE_ON_STARTUP", "maybe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

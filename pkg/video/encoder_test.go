package video

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"gocv.io/x/gocv"
)

func TestClampFrameRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{8, 8},
		{0, 0.5},
		{-3, 0.5},
		{0.25, 0.5},
		{29.97, 29.97},
		{120, 30},
	}
	for _, tc := range tests {
		if got := ClampFrameRate(tc.in); got != tc.want {
			t.Errorf("ClampFrameRate(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFrameName(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "0000000000000000.jpg"},
		{7, "0000000000000007.jpg"},
		{123, "0000000000000123.jpg"},
	}
	for _, tc := range tests {
		got := FrameName(tc.i)
		if got != tc.want {
			t.Errorf("FrameName(%d) = %q, want %q", tc.i, got, tc.want)
		}
		if len(got) != 20 {
			t.Errorf("FrameName(%d) has length %d", tc.i, len(got))
		}
	}

	// Lexical order must match numeric order.
	if FrameName(10) < FrameName(9) {
		t.Error("FrameName(10) sorts before FrameName(9)")
	}
}

func TestFrames(t *testing.T) {
	dir := t.TempDir()
	for _, i := range []int{10, 2, 0} {
		if err := os.WriteFile(filepath.Join(dir, FrameName(i)), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, outputName), []byte("old"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755)

	got, err := Frames(dir)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	want := []string{
		filepath.Join(dir, FrameName(0)),
		filepath.Join(dir, FrameName(2)),
		filepath.Join(dir, FrameName(10)),
	}
	if !slices.Equal(got, want) {
		t.Errorf("Frames = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"ffmpeg", false},
		{"", false},
		{"OpenCV", false},
		{"gif", true},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			enc, err := New(tc.kind, "")
			if (err != nil) != tc.wantErr {
				t.Fatalf("New(%q) error = %v", tc.kind, err)
			}
			if !tc.wantErr && enc == nil {
				t.Error("expected an encoder")
			}
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg("")
	args := f.Args("/scratch", "/scratch/output.mp4", 100)

	wantPairs := map[string]string{
		"-framerate":    "30",
		"-pattern_type": "glob",
		"-i":            filepath.Join("/scratch", "*.jpg"),
		"-pix_fmt":      "yuv420p",
	}
	for flag, want := range wantPairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Errorf("missing %s in %v", flag, args)
			continue
		}
		if args[i+1] != want {
			t.Errorf("%s = %q, want %q", flag, args[i+1], want)
		}
	}
	if args[len(args)-1] != "/scratch/output.mp4" {
		t.Errorf("output should be last, got %v", args)
	}
}

func TestEncodeEmptyDir(t *testing.T) {
	encoders := map[string]Encoder{
		"ffmpeg": NewFFmpeg(""),
		"opencv": NewWriter(),
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			_, err := enc.Encode(context.Background(), t.TempDir(), 8)
			if !errors.Is(err, ErrNoFrames) {
				t.Errorf("expected ErrNoFrames, got %v", err)
			}
		})
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	dir := t.TempDir()
	writeTestFrames(t, dir, 2)

	f := NewFFmpeg(filepath.Join(dir, "no-such-ffmpeg"))
	if _, err := f.Encode(context.Background(), dir, 8); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestFFmpegEncode(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed, skipping test")
	}

	dir := t.TempDir()
	writeTestFrames(t, dir, 4)

	data, err := NewFFmpeg(path).Encode(context.Background(), dir, 8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 8 || string(data[4:8]) != "ftyp" {
		t.Errorf("output does not look like an MP4 (%d bytes)", len(data))
	}
}

func writeTestFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i*40), 90, 160, 0), 48, 64, gocv.MatTypeCV8UC3)
		ok := gocv.IMWrite(filepath.Join(dir, FrameName(i)), img)
		img.Close()
		if !ok {
			t.Fatalf("failed to write frame %d", i)
		}
	}
}

package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// Source produces one still frame per call. A (nil, nil) return means no
// frame is available right now; callers skip the cycle and try again on the
// next tick.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// NewSource picks the frame source from config. A snapshot URL wins over a
// capture command.
func NewSource(cfg config.CameraConfig) (Source, error) {
	switch {
	case cfg.SnapshotURL != "":
		return &HTTPSource{URL: cfg.SnapshotURL, Client: &http.Client{Timeout: 10 * time.Second}}, nil
	case cfg.Command != "":
		return &CommandSource{Name: cfg.Command, Args: cfg.Args, Timeout: 10 * time.Second}, nil
	}
	return nil, fmt.Errorf("no camera configured: set camera.snapshotUrl or camera.command")
}

// HTTPSource fetches stills from an IP-camera / phone-camera snapshot
// endpoint. Any transport problem counts as "not ready", not an error: a
// camera that has not finished warming up must not poison the cycle.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Capture(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[camera] snapshot unavailable: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[camera] snapshot unavailable: status %d", resp.StatusCode)
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// CommandSource runs an external capture command (ffmpeg, fswebcam, ...)
// that writes one JPEG to stdout.
type CommandSource struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

func (s *CommandSource) Capture(ctx context.Context) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Name, s.Args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		log.Printf("[camera] capture command failed: %v", err)
		return nil, nil
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out.Bytes(), nil
}

package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/bus"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/monitor"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/usage"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

type idleSource struct{}

func (idleSource) Capture(ctx context.Context) ([]byte, error) { return nil, nil }

type idleClassifier struct{}

func (idleClassifier) Classify(ctx context.Context, image []byte) (*vision.Result, error) {
	return &vision.Result{Status: vision.StatusIdle}, nil
}

func newTestServer(t *testing.T, port, limitSeconds int) (*Server, *monitor.Session, *usage.Guard) {
	t.Helper()
	guard, err := usage.NewGuard(filepath.Join(t.TempDir(), "usage.json"), limitSeconds)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	cfg := config.MonitorConfig{
		IntervalSeconds:       3600,
		AlertThreshold:        2,
		NotifyCooldownSeconds: 180,
		DailyLimitSeconds:     limitSeconds,
		EncouragementOdds:     0.15,
	}
	session := monitor.NewSession(cfg, idleSource{}, idleClassifier{}, guard, nil, nil, nil)

	srv := NewServer(config.WebUIConfig{Host: "127.0.0.1", Port: port}, session, guard, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	waitForServer(t, port)
	return srv, session, guard
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	url := fmt.Sprintf("http://127.0.0.1:%d/api/state", port)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server on port %d never came up", port)
}

func TestStateEndpoint(t *testing.T) {
	_, _, _ = newTestServer(t, 19891, 1200)

	resp, err := http.Get("http://127.0.0.1:19891/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap monitor.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Running {
		t.Error("running before start")
	}
	if snap.Status != vision.StatusIdle {
		t.Errorf("status = %s, want idle", snap.Status)
	}
	if snap.RemainingSeconds != 1200 {
		t.Errorf("remaining = %d, want 1200", snap.RemainingSeconds)
	}
	if snap.Score != 50 {
		t.Errorf("score = %d, want baseline 50", snap.Score)
	}
}

func TestSessionStartStopEndpoints(t *testing.T) {
	_, session, _ := newTestServer(t, 19892, 100000)

	resp, err := http.Post("http://127.0.0.1:19892/api/session/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	if !session.State().Running {
		t.Fatal("session not running after start")
	}

	// Double start conflicts.
	resp, err = http.Post("http://127.0.0.1:19892/api/session/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double start status = %d, want 409", resp.StatusCode)
	}

	resp, err = http.Post("http://127.0.0.1:19892/api/session/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if session.State().Running {
		t.Error("session still running after stop")
	}
}

func TestStartRejectedWhenLimitSpent(t *testing.T) {
	_, _, _ = newTestServer(t, 19893, 0)

	resp, err := http.Post("http://127.0.0.1:19893/api/session/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", resp.StatusCode)
	}
}

func TestActivateEndpoint(t *testing.T) {
	_, _, guard := newTestServer(t, 19894, 10)

	body := bytes.NewBufferString(`{"code":"WRONG"}`)
	resp, err := http.Post("http://127.0.0.1:19894/api/activate", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong code status = %d, want 403", resp.StatusCode)
	}

	body = bytes.NewBufferString(`{"code":"VIP888"}`)
	resp, err = http.Post("http://127.0.0.1:19894/api/activate", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !guard.Pro() {
		t.Error("guard not upgraded")
	}
}

func TestNotifyTestWithoutChannels(t *testing.T) {
	_, _, _ = newTestServer(t, 19895, 100)

	resp, err := http.Post("http://127.0.0.1:19895/api/notify/test", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", resp.StatusCode)
	}
}

func TestMethodGuards(t *testing.T) {
	_, _, _ = newTestServer(t, 19896, 100)

	for _, path := range []string{"/api/session/start", "/api/session/stop", "/api/activate", "/api/notify/test"} {
		resp, err := http.Get("http://127.0.0.1:19896" + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s status = %d, want 405", path, resp.StatusCode)
		}
	}
}

func TestWebSocketReceivesBusEvents(t *testing.T) {
	_, session, _ := newTestServer(t, 19897, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://127.0.0.1:19897/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Give the server a beat to register the client before publishing.
	time.Sleep(100 * time.Millisecond)
	session.Events().Publish(bus.Event{Kind: bus.KindStatus, Status: vision.StatusFocused, Message: "working"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev bus.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Kind != bus.KindStatus || ev.Status != vision.StatusFocused {
		t.Errorf("event = %+v", ev)
	}
}

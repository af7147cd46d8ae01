package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/monitor"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/notify"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/stats"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/usage"
)

//go:embed static
var staticFiles embed.FS

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// Server exposes the dashboard: static page, JSON state endpoints, and a
// websocket that streams live session events.
type Server struct {
	host    string
	port    int
	session *monitor.Session
	guard   *usage.Guard
	fanout  *notify.Fanout
	server  *http.Server
	clients sync.Map
	nextID  atomic.Int64
	cancel  context.CancelFunc
}

func NewServer(cfg config.WebUIConfig, session *monitor.Session, guard *usage.Guard, fanout *notify.Fanout) *Server {
	host := cfg.Host
	if host == "" {
		host = config.DefaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return &Server{host: host, port: port, session: session, guard: guard, fanout: fanout}
}

func (s *Server) Start(ctx context.Context) error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("embed static fs: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/session/start", s.handleStart)
	mux.HandleFunc("/api/session/stop", s.handleStop)
	mux.HandleFunc("/api/activate", s.handleActivate)
	mux.HandleFunc("/api/notify/test", s.handleNotifyTest)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.broadcastLoop(runCtx)

	go func() {
		log.Printf("[webui] listening on %s:%d", s.host, s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[webui] server error: %v", err)
		}
	}()
	return nil
}

// broadcastLoop forwards session events to every connected dashboard.
func (s *Server) broadcastLoop(ctx context.Context) {
	events, unsubscribe := s.session.Events().Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			s.clients.Range(func(key, value any) bool {
				c := value.(*wsClient)
				wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = c.conn.Write(wctx, websocket.MessageText, data)
				cancel()
				return true
			})
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webui] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("dash-%d", s.nextID.Add(1))
	s.clients.Store(clientID, &wsClient{conn: conn, id: clientID})
	log.Printf("[webui] client connected: %s", clientID)

	defer func() {
		s.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[webui] client disconnected: %s", clientID)
	}()

	// The dashboard only listens; drain until the peer goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.State())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Log().Entries())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.session.Stats()
	writeJSON(w, map[string]any{
		"stats":       st,
		"score":       stats.DailyScore(st),
		"badges":      stats.Catalog,
		"leaderboard": stats.Leaderboard(stats.DailyScore(st)),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.session.Start(context.Background()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, monitor.ErrDailyLimitReached) {
			status = http.StatusPaymentRequired
		} else if errors.Is(err, monitor.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.session.Stop()
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !s.guard.Activate(body.Code) {
		http.Error(w, "invalid activation code", http.StatusForbidden)
		return
	}
	writeJSON(w, map[string]bool{"ok": true, "pro": true})
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.fanout == nil || !s.fanout.Configured() {
		http.Error(w, "no notification channel configured", http.StatusPreconditionFailed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	ok := s.fanout.Send(ctx, "Focus Guardian test notification. If you can read this, alerts are working.")
	writeJSON(w, map[string]bool{"ok": ok})
}

func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[webui] shutdown error: %v", err)
		}
	}
	s.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
	log.Printf("[webui] stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[webui] encode response: %v", err)
	}
}

package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

// Window is a recurring homework slot. Expr uses six-field cron syntax
// (seconds first); DurationMinutes bounds the automatic session.
type Window struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Expr            string      `json:"expr"`
	DurationMinutes int         `json:"durationMinutes"`
	Enabled         bool        `json:"enabled"`
	State           WindowState `json:"state"`
	CreatedAtMs     int64       `json:"createdAtMs"`
}

type WindowState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// Service fires OnWindow at each window's cron time. Windows persist as
// JSON at storePath.
type Service struct {
	storePath string
	mu        sync.Mutex
	windows   []Window
	OnWindow  func(w Window) error
	cron      *rcron.Cron
	entryMap  map[string]rcron.EntryID
	cancel    context.CancelFunc
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		entryMap:  make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.load(); err != nil {
		log.Printf("[schedule] warning: failed to load windows: %v", err)
	}

	s.cron = rcron.New(rcron.WithSeconds())

	s.mu.Lock()
	for i := range s.windows {
		if s.windows[i].Enabled {
			s.registerWindow(&s.windows[i])
		}
	}
	count := len(s.windows)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[schedule] started with %d windows", count)

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) registerWindow(w *Window) {
	winCopy := *w
	id, err := s.cron.AddFunc(w.Expr, func() {
		s.fireWindow(winCopy)
	})
	if err != nil {
		log.Printf("[schedule] failed to register window %s (%s): %v", w.Name, w.Expr, err)
		return
	}
	s.entryMap[w.ID] = id
}

func (s *Service) fireWindow(w Window) {
	log.Printf("[schedule] window %s (%s) opening", w.Name, w.ID)

	if s.OnWindow == nil {
		log.Printf("[schedule] no OnWindow handler set")
		return
	}

	err := s.OnWindow(w)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.windows {
		if s.windows[i].ID == w.ID {
			s.windows[i].State.LastRunAtMs = time.Now().UnixMilli()
			if err != nil {
				s.windows[i].State.LastStatus = "error"
				s.windows[i].State.LastError = err.Error()
				log.Printf("[schedule] window %s error: %v", w.Name, err)
			} else {
				s.windows[i].State.LastStatus = "ok"
				s.windows[i].State.LastError = ""
			}
			break
		}
	}
	_ = s.save()
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[schedule] stop timeout waiting for running windows")
		}
	}
	log.Printf("[schedule] stopped")
}

// AddWindow validates the cron expression, stores the window, and registers
// it when the scheduler is running.
func (s *Service) AddWindow(name, expr string, durationMinutes int) (*Window, error) {
	if _, err := rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour |
		rcron.Dom | rcron.Month | rcron.Dow).Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := Window{
		ID:              uuid.NewString(),
		Name:            name,
		Expr:            expr,
		DurationMinutes: durationMinutes,
		Enabled:         true,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
	s.windows = append(s.windows, w)
	if s.cron != nil {
		s.registerWindow(&s.windows[len(s.windows)-1])
	}
	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save windows: %w", err)
	}
	return &w, nil
}

func (s *Service) RemoveWindow(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.windows {
		if w.ID == id {
			if entryID, ok := s.entryMap[id]; ok && s.cron != nil {
				s.cron.Remove(entryID)
				delete(s.entryMap, id)
			}
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			_ = s.save()
			return true
		}
	}
	return false
}

func (s *Service) ListWindows() []Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Window, len(s.windows))
	copy(result, s.windows)
	return result
}

func (s *Service) EnableWindow(id string, enabled bool) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.windows {
		if s.windows[i].ID == id {
			s.windows[i].Enabled = enabled
			if s.cron != nil {
				if enabled {
					if _, ok := s.entryMap[id]; !ok {
						s.registerWindow(&s.windows[i])
					}
				} else if entryID, ok := s.entryMap[id]; ok {
					s.cron.Remove(entryID)
					delete(s.entryMap, id)
				}
			}
			_ = s.save()
			w := s.windows[i]
			return &w, nil
		}
	}
	return nil, fmt.Errorf("window %s not found", id)
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.windows)
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.windows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0644)
}

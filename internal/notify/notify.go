package notify

import (
	"context"
	"log"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// Dispatcher pushes an alert to one parent-facing channel. Send reports
// whether delivery succeeded; failures are logged, never fatal.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, text string) bool
}

// Fanout delivers to every configured channel and succeeds when at least
// one of them does.
type Fanout struct {
	channels []Dispatcher
}

// NewFanout wraps explicit channels, mainly for wiring in tests.
func NewFanout(channels ...Dispatcher) *Fanout {
	return &Fanout{channels: channels}
}

func (f *Fanout) Name() string { return "fanout" }

// Configured reports whether any channel is wired.
func (f *Fanout) Configured() bool { return len(f.channels) > 0 }

func (f *Fanout) Send(ctx context.Context, text string) bool {
	delivered := false
	for _, d := range f.channels {
		if d.Send(ctx, text) {
			delivered = true
		} else {
			log.Printf("[notify] %s delivery failed", d.Name())
		}
	}
	return delivered
}

// FromConfig assembles the fanout from whatever channels cfg configures.
func FromConfig(cfg config.NotifyConfig) *Fanout {
	f := &Fanout{}
	if cfg.WxPusher.AppToken != "" && len(cfg.WxPusher.UIDs) > 0 {
		f.channels = append(f.channels, NewWxPusher(cfg.WxPusher))
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := NewTelegram(cfg.Telegram)
		if err != nil {
			log.Printf("[notify] telegram init failed: %v", err)
		} else {
			f.channels = append(f.channels, tg)
		}
	}
	return f
}

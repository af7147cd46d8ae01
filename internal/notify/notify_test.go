package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

func newTestWxPusher(t *testing.T, handler http.HandlerFunc) *WxPusher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	w := NewWxPusher(config.WxPusherConfig{AppToken: "AT_test", UIDs: []string{"UID_1"}})
	w.Endpoint = srv.URL
	w.Client = srv.Client()
	return w
}

func TestWxPusherSend(t *testing.T) {
	var got wxPusherRequest
	w := newTestWxPusher(t, func(rw http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(rw, `{"code":1000,"msg":"ok"}`)
	})

	if !w.Send(context.Background(), "child looked away from homework") {
		t.Fatal("Send = false, want true")
	}
	if got.AppToken != "AT_test" || len(got.UIDs) != 1 || got.UIDs[0] != "UID_1" {
		t.Errorf("request = %+v", got)
	}
	if got.Summary != "child looked away f..." {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestWxPusherRejectedCode(t *testing.T) {
	w := newTestWxPusher(t, func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, `{"code":1001,"msg":"bad token"}`)
	})
	if w.Send(context.Background(), "hello") {
		t.Fatal("Send = true for non-1000 code")
	}
}

func TestWxPusherTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	w := NewWxPusher(config.WxPusherConfig{AppToken: "AT", UIDs: []string{"U"}})
	w.Endpoint = url
	if w.Send(context.Background(), "hello") {
		t.Fatal("Send = true on connection failure")
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "short"},
		{"exactly twenty chars", "exactly twenty chars"},
		{"this message is definitely longer than twenty", "this message is defi..."},
		{"中文提醒中文提醒中文提醒中文提醒中文提醒中文", "中文提醒中文提醒中文提醒中文提醒中文提醒..."},
	}
	for _, tt := range tests {
		if got := summarize(tt.in); got != tt.want {
			t.Errorf("summarize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramSend(t *testing.T) {
	orig := BotFactory
	defer func() { BotFactory = orig }()
	bot := &fakeBot{}
	BotFactory = func(token string) (telegramBot, error) { return bot, nil }

	tg, err := NewTelegram(config.TelegramConfig{Token: "tok", ChatID: 42})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if !tg.Send(context.Background(), "homework alert") {
		t.Fatal("Send = false")
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d messages", len(bot.sent))
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if msg.ChatID != 42 || msg.Text != "homework alert" {
		t.Errorf("message = %+v", msg)
	}
}

func TestTelegramSendFailure(t *testing.T) {
	orig := BotFactory
	defer func() { BotFactory = orig }()
	BotFactory = func(token string) (telegramBot, error) {
		return &fakeBot{err: errors.New("api error")}, nil
	}

	tg, err := NewTelegram(config.TelegramConfig{Token: "tok", ChatID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if tg.Send(context.Background(), "x") {
		t.Fatal("Send = true on bot error")
	}
}

type stubDispatcher struct {
	name string
	ok   bool
	got  []string
}

func (s *stubDispatcher) Name() string { return s.name }
func (s *stubDispatcher) Send(ctx context.Context, text string) bool {
	s.got = append(s.got, text)
	return s.ok
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	a := &stubDispatcher{name: "a", ok: true}
	b := &stubDispatcher{name: "b", ok: false}
	f := NewFanout(a, b)

	if !f.Send(context.Background(), "alert") {
		t.Fatal("Send = false when one channel succeeded")
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("delivery counts: a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestFanoutAllChannelsFail(t *testing.T) {
	f := NewFanout(&stubDispatcher{name: "a"}, &stubDispatcher{name: "b"})
	if f.Send(context.Background(), "alert") {
		t.Fatal("Send = true when every channel failed")
	}
}

func TestFromConfig(t *testing.T) {
	orig := BotFactory
	defer func() { BotFactory = orig }()
	BotFactory = func(token string) (telegramBot, error) { return &fakeBot{}, nil }

	tests := []struct {
		name string
		cfg  config.NotifyConfig
		want int
	}{
		{"nothing configured", config.NotifyConfig{Enabled: true}, 0},
		{
			"wxpusher only",
			config.NotifyConfig{WxPusher: config.WxPusherConfig{AppToken: "AT", UIDs: []string{"U"}}},
			1,
		},
		{
			"wxpusher without uids is incomplete",
			config.NotifyConfig{WxPusher: config.WxPusherConfig{AppToken: "AT"}},
			0,
		},
		{
			"both channels",
			config.NotifyConfig{
				WxPusher: config.WxPusherConfig{AppToken: "AT", UIDs: []string{"U"}},
				Telegram: config.TelegramConfig{Token: "tok", ChatID: 9},
			},
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FromConfig(tt.cfg)
			if len(f.channels) != tt.want {
				t.Errorf("channels = %d, want %d", len(f.channels), tt.want)
			}
			if f.Configured() != (tt.want > 0) {
				t.Errorf("Configured() = %v", f.Configured())
			}
		})
	}
}

func TestDispatcherNames(t *testing.T) {
	w := NewWxPusher(config.WxPusherConfig{AppToken: "AT", UIDs: []string{"U"}})
	if w.Name() != "wxpusher" {
		t.Errorf("wxpusher name = %s", w.Name())
	}
	if !strings.Contains(NewFanout().Name(), "fanout") {
		t.Errorf("fanout name = %s", NewFanout().Name())
	}
}

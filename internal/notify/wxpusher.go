package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// WxPusher delivers alerts through the WxPusher WeChat relay.
type WxPusher struct {
	AppToken string
	UIDs     []string
	Endpoint string
	Client   *http.Client
}

func NewWxPusher(cfg config.WxPusherConfig) *WxPusher {
	return &WxPusher{
		AppToken: cfg.AppToken,
		UIDs:     cfg.UIDs,
		Endpoint: config.DefaultWxPusherEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WxPusher) Name() string { return "wxpusher" }

type wxPusherRequest struct {
	AppToken    string   `json:"appToken"`
	Content     string   `json:"content"`
	Summary     string   `json:"summary"`
	ContentType int      `json:"contentType"`
	UIDs        []string `json:"uids"`
}

type wxPusherResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (w *WxPusher) Send(ctx context.Context, text string) bool {
	payload := wxPusherRequest{
		AppToken:    w.AppToken,
		Content:     text,
		Summary:     summarize(text),
		ContentType: 1,
		UIDs:        w.UIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		log.Printf("[notify] wxpusher request: %v", err)
		return false
	}
	defer resp.Body.Close()
	var out wxPusherResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("[notify] wxpusher decode: %v", err)
		return false
	}
	if out.Code != 1000 {
		log.Printf("[notify] wxpusher rejected: code=%d msg=%s", out.Code, out.Msg)
		return false
	}
	return true
}

// summarize keeps the first 20 characters for the WeChat preview line.
func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= 20 {
		return text
	}
	return string(runes[:20]) + "..."
}

package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantStatus Status
		wantErr    bool
	}{
		{
			name:       "bare json",
			content:    `{"status":"FOCUSED","message":"nice work","confidence":0.9}`,
			wantStatus: StatusFocused,
		},
		{
			name:       "fenced json",
			content:    "```json\n{\"status\":\"DISTRACTED\",\"message\":\"come back\",\"confidence\":0.8}\n```",
			wantStatus: StatusDistracted,
		},
		{
			name:       "fence without language tag",
			content:    "```\n{\"status\":\"ABSENT\",\"message\":\"where are you\",\"confidence\":0.7}\n```",
			wantStatus: StatusAbsent,
		},
		{
			name:       "surrounding whitespace",
			content:    "  \n{\"status\":\"BAD_POSTURE\",\"message\":\"sit up\",\"confidence\":0.85}\n ",
			wantStatus: StatusBadPosture,
		},
		{
			name:       "unknown status coerces to distracted",
			content:    `{"status":"SLEEPING","message":"zzz","confidence":0.5}`,
			wantStatus: StatusDistracted,
		},
		{
			name:    "empty content",
			content: "   ",
			wantErr: true,
		},
		{
			name:    "not json",
			content: "I could not analyze this image.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := decodeResult(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeResult(%q) succeeded, want error", tt.content)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeResult: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
		})
	}
}

func TestNewClassifierRequiresKey(t *testing.T) {
	if _, err := NewClassifier(config.ProviderConfig{}); err == nil {
		t.Fatal("want error for missing API key")
	}
}

func TestNewClassifierProviderSwitch(t *testing.T) {
	c, err := NewClassifier(config.ProviderConfig{APIKey: "k", Type: "anthropic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*modelClassifier); !ok {
		t.Errorf("anthropic provider = %T, want *modelClassifier", c)
	}

	c, err = NewClassifier(config.ProviderConfig{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*dashScopeClassifier); !ok {
		t.Errorf("default provider = %T, want *dashScopeClassifier", c)
	}
}

func newTestDashScope(t *testing.T, handler http.HandlerFunc) *dashScopeClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newDashScopeClassifier(config.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func TestDashScopeClassify(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	c := newTestDashScope(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, chatReply(`{"status":"FOCUSED","message":"keep going","confidence":0.92}`))
	})

	res, err := c.Classify(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Status != StatusFocused || res.Message != "keep going" {
		t.Errorf("result = %+v", res)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(gotBody.Messages) != 1 || len(gotBody.Messages[0].Content) != 2 {
		t.Fatalf("unexpected request shape: %+v", gotBody)
	}
	img := gotBody.Messages[0].Content[1]
	if img.ImageURL == nil || !strings.HasPrefix(img.ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image part = %+v", img)
	}
}

func TestDashScopeClassifyEmptyFrame(t *testing.T) {
	c := newTestDashScope(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for an empty frame")
	})
	if _, err := c.Classify(context.Background(), nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("err = %v, want ErrEmptyFrame", err)
	}
}

func TestDashScopeClassifyHTTPFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		wantHint string
	}{
		{"unauthorized", http.StatusUnauthorized, "API key rejected"},
		{"forbidden", http.StatusForbidden, "API key rejected"},
		{"rate limited", http.StatusTooManyRequests, "rate limited"},
		{"server error", http.StatusInternalServerError, "model request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestDashScope(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.code)
			})
			res, err := c.Classify(context.Background(), []byte("img"))
			if err != nil {
				t.Fatalf("HTTP failure must map to an error result, got err: %v", err)
			}
			if res.Status != StatusError {
				t.Errorf("status = %s, want error", res.Status)
			}
			if !strings.Contains(res.Message, tt.wantHint) {
				t.Errorf("message = %q, want substring %q", res.Message, tt.wantHint)
			}
		})
	}
}

func TestDashScopeClassifyMalformedReply(t *testing.T) {
	c := newTestDashScope(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("sorry, no idea"))
	})
	res, err := c.Classify(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError {
		t.Errorf("status = %s, want error", res.Status)
	}
}

func TestDashScopeClassifyNoChoices(t *testing.T) {
	c := newTestDashScope(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	res, err := c.Classify(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError {
		t.Errorf("status = %s, want error", res.Status)
	}
}

type fakeCompleter struct {
	resp *model.Response
	err  error
	req  model.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	f.req = req
	return f.resp, f.err
}

func TestModelClassifier(t *testing.T) {
	fake := &fakeCompleter{
		resp: &model.Response{
			Message: model.Message{
				Role:    "assistant",
				Content: `{"status":"BAD_POSTURE","message":"sit up straight","confidence":0.88}`,
			},
		},
	}
	c := newModelClassifier(config.ProviderConfig{APIKey: "k", Model: "claude-test"})
	c.complete = fake

	res, err := c.Classify(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Status != StatusBadPosture {
		t.Errorf("status = %s, want bad_posture", res.Status)
	}

	if len(fake.req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(fake.req.Messages))
	}
	blocks := fake.req.Messages[0].ContentBlocks
	if len(blocks) != 2 || blocks[1].Type != model.ContentBlockImage || blocks[1].MediaType != "image/jpeg" {
		t.Errorf("content blocks = %+v", blocks)
	}
}

func TestModelClassifierCallError(t *testing.T) {
	c := newModelClassifier(config.ProviderConfig{APIKey: "k"})
	c.complete = &fakeCompleter{err: errors.New("network down")}

	res, err := c.Classify(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError || !strings.Contains(res.Message, "network down") {
		t.Errorf("result = %+v", res)
	}
}

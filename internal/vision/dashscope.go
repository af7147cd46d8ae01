package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// dashScopeClassifier calls an OpenAI-compatible chat-completions endpoint
// (DashScope qwen-vl by default) with one image per request.
type dashScopeClassifier struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func newDashScopeClassifier(cfg config.ProviderConfig) *dashScopeClassifier {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	return &dashScopeClassifier{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *dashScopeClassifier) Classify(ctx context.Context, image []byte) (*Result, error) {
	if len(image) == 0 {
		return nil, ErrEmptyFrame
	}

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "text", Text: classifyPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   c.maxTokens,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult(fmt.Errorf("marshal request: %w", err)), nil
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return errorResult(fmt.Errorf("build request: %w", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errorResult(fmt.Errorf("call model: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errorResult(fmt.Errorf("API key rejected (%d)", resp.StatusCode)), nil
		case http.StatusTooManyRequests:
			return errorResult(fmt.Errorf("rate limited, slow down")), nil
		}
		return errorResult(fmt.Errorf("model request failed: %d: %s", resp.StatusCode, truncate(string(body), 120))), nil
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return errorResult(fmt.Errorf("decode response: %w", err)), nil
	}
	if len(cr.Choices) == 0 {
		return errorResult(fmt.Errorf("model returned no choices")), nil
	}

	res, err := decodeResult(cr.Choices[0].Message.Content)
	if err != nil {
		return errorResult(err), nil
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

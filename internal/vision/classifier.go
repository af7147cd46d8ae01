package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// ErrEmptyFrame signals that there was nothing to classify. The caller skips
// the cycle instead of recording an error status.
var ErrEmptyFrame = errors.New("empty frame")

// Classifier turns one still frame into a Result. Implementations translate
// transport, auth, and parse failures into a StatusError result rather than
// returning an error; the only error return is ErrEmptyFrame.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (*Result, error)
}

// classifyPrompt describes the four-way taxonomy and the message style the
// model must follow. The response must be a bare JSON object.
const classifyPrompt = `You are a strict but kind homework supervision assistant. Analyze the student in this picture.

Reply with exactly this JSON shape (no markdown code fences, no extra text):
{
  "status": "FOCUSED" | "DISTRACTED" | "ABSENT" | "BAD_POSTURE",
  "message": "a short spoken prompt for the child (under 15 words)",
  "confidence": 0.95
}

Rules:
- FOCUSED: eyes on the book or paper, writing, reading, sitting upright. Short study-related motions (grabbing a pen, turning a page, finding an eraser) still count as FOCUSED.
- BAD_POSTURE: eyes too close to the desk (<30cm), slumped over the desk while writing, head tilted hard, or a heavily hunched back. This takes priority over FOCUSED.
- DISTRACTED: clearly looking around, playing with toys, sleeping on the desk, using a phone, staring into space.
- ABSENT: nobody in the chair.

Message style:
- FOCUSED: encourage ("great posture, keep it up")
- BAD_POSTURE: health reminder ("sit up straight, protect your eyes")
- DISTRACTED: gentle nudge ("come back, focus on your homework")
- ABSENT: ask where they went ("where did you go?")`

// decodeResult parses the model's reply. Qwen-style models sometimes wrap the
// JSON in markdown fences despite instructions; strip them before parsing.
// An unknown status coerces to DISTRACTED, never silently to FOCUSED.
func decodeResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("model returned empty content")
	}

	content = strings.TrimSpace(stripFences(content))

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	if !res.Status.Valid() {
		res.Status = StatusDistracted
	}
	return &res, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if nl := strings.Index(s, "\n"); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if len(firstLine) > 0 && !strings.Contains(firstLine, " ") && !strings.HasPrefix(firstLine, "{") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return s
}

// errorResult wraps a failure description as a StatusError classification.
func errorResult(err error) *Result {
	return &Result{Status: StatusError, Message: err.Error(), Confidence: 0}
}

// NewClassifier builds the classifier for the configured provider.
func NewClassifier(cfg config.ProviderConfig) (Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set. Run 'focusguard onboard' or set FOCUSGUARD_API_KEY / DASHSCOPE_API_KEY")
	}
	switch cfg.Type {
	case "anthropic":
		return newModelClassifier(cfg), nil
	default: // "dashscope" / openai-compatible, the default
		return newDashScopeClassifier(cfg), nil
	}
}

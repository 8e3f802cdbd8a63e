package language

import (
	"context"
	"strings"
	"time"
)

type mockBackend struct {
	delay time.Duration
}

// NewMockBackend returns a deterministic offline backend. Text ending in a
// question mark is classified as a question.
func NewMockBackend(delay time.Duration) Backend { return &mockBackend{delay: delay} }

func (m *mockBackend) Generate(ctx context.Context, req Request) (string, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}
	text := quoted(req.Prompt)
	switch req.Task {
	case TaskTranslate:
		return "[mock translation of " + text + "]", nil
	case TaskClassify:
		if strings.HasSuffix(strings.TrimSpace(text), "?") {
			return `{"is_question": true}`, nil
		}
		return `{"is_question": false}`, nil
	default:
		return "[mock answer to " + text + "]", nil
	}
}

// quoted pulls the last double-quoted span out of a prompt.
func quoted(prompt string) string {
	end := strings.LastIndex(prompt, `"`)
	if end <= 0 {
		return strings.TrimSpace(prompt)
	}
	start := strings.LastIndex(prompt[:end], `"`)
	if start < 0 {
		return strings.TrimSpace(prompt)
	}
	return prompt[start+1 : end]
}

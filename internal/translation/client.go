// Package translation is a LibreTranslate compatible translation backend for
// the fixed source and target languages of a session.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyTranslation = errors.New("translation service returned empty text")

type Client struct {
	base   string
	source string
	target string
	apiKey string
	http   *http.Client
}

// New returns a client for base. Source and target are LibreTranslate
// language codes such as "en" and "es".
func New(base, source, target, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		source: src,
		target: strings.TrimSpace(target),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// Translate posts text to the /translate endpoint and returns the primary
// translation.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	payload := map[string]any{
		"q":      text,
		"source": c.source,
		"target": c.target,
		"format": "text",
	}
	if c.apiKey != "" {
		payload["api_key"] = c.apiKey
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("translation http %d for target %s", resp.StatusCode, c.target)
	}

	var lr struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	out := strings.TrimSpace(lr.TranslatedText)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

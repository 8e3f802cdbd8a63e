package language

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execBackend struct {
	cmd []string
}

type execRequest struct {
	Task            Task            `json:"task"`
	Prompt          string          `json:"prompt"`
	System          string          `json:"system,omitempty"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Temperature     float32         `json:"temperature"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	Schema          json.RawMessage `json:"schema,omitempty"`
}

type execResponse struct {
	Content string `json:"content"`
}

// NewExecBackend runs command once per request. The request is written to
// stdin as JSON and the command must print {"content": "..."} to stdout.
func NewExecBackend(command string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse language command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("language command empty")
	}
	return &execBackend{cmd: args}, nil
}

func (b *execBackend) Generate(ctx context.Context, req Request) (string, error) {
	payload := execRequest{
		Task:            req.Task,
		Prompt:          req.Prompt,
		System:          req.System,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		ReasoningEffort: req.ReasoningEffort,
	}
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("encode schema: %w", err)
		}
		payload.Schema = schema
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, b.cmd[0], b.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("language exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode language exec response: %w", err)
	}
	return resp.Content, nil
}

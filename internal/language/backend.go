// Package language talks to the generative backend that translates,
// classifies and answers finalized utterances.
package language

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Task names the operation a request belongs to.
type Task string

const (
	TaskTranslate Task = "translate"
	TaskClassify  Task = "classify"
	TaskAnswer    Task = "answer"
)

// Request is a single, self-contained generation request. Backends keep no
// conversation state between requests.
type Request struct {
	Task        Task
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int
	// ReasoningEffort is passed through to backends that support thinking
	// budgets ("none", "low", "medium", "high").
	ReasoningEffort string
	// Schema constrains the response to JSON when set.
	Schema     *jsonschema.Definition
	SchemaName string
}

// Backend produces the full text of one completion.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Translator is an alternative translation path that bypasses the backend.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

package language

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var questionSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"is_question": {
			Type:        jsonschema.Boolean,
			Description: "True if the text is a question, false otherwise.",
		},
	},
	Required:             []string{"is_question"},
	AdditionalProperties: false,
}

func translatePrompt(source, target, text string) string {
	return fmt.Sprintf("Translate the following %s text to %s. Provide only the translation, without any additional explanations, context, or quotation marks.\n\n%s: %q\n\n%s:",
		source, target, source, text, target)
}

func classifyPrompt(source, text string) string {
	return fmt.Sprintf("Analyze the following %s text and determine if it is a question. Respond in JSON format.\n\nText: %q", source, text)
}

func answerPrompt(persona, source, question, context string) string {
	var b strings.Builder
	if persona != "" {
		b.WriteString("You are ")
		b.WriteString(persona)
		b.WriteString(". ")
	}
	b.WriteString("Provide a short, concise, and clear answer to the question.\n")
	fmt.Fprintf(&b, "IMPORTANT: The answer MUST BE in %s, even if the context or question is in another language. If the answer is found in the context in another language, translate it to %s.\n", source, source)
	b.WriteString(`Do not start with phrases like "The answer is" or "Here is the answer".`)

	if ctx := strings.TrimSpace(context); ctx != "" {
		b.WriteString("\n\nUse the following context to answer the question. If the answer is not available in the context, use your general knowledge to answer. Do not state that the information wasn't in the provided context.\n---CONTEXT---\n")
		b.WriteString(ctx)
		b.WriteString("\n---END CONTEXT---")
	}

	fmt.Fprintf(&b, "\n\nQuestion: %q", question)
	return b.String()
}

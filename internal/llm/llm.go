// Package llm is the boundary to whatever language model backs session text
// generation. The planner only ever sees the Completer interface; everything
// model-specific stays behind it.
package llm

import "context"

// Completer is the minimal interface the planner uses to generate text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

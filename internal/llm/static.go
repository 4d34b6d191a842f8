package llm

import "context"

// Static is a Completer that returns canned responses. It backs tests and the
// deterministic fallback path when no model endpoint is configured.
type Static struct {
	Responses []string
	calls     int
}

func (s *Static) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *Static) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.Responses) == 0 {
		return "", nil
	}
	r := s.Responses[s.calls%len(s.Responses)]
	s.calls++
	return r, nil
}

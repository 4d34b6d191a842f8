package llm

import (
	"context"
	"testing"
)

const stepSchema = `{
	"type": "object",
	"required": ["steps"],
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["step_type", "instructions"],
				"properties": {
					"step_type": {"type": "string", "enum": ["warmup", "work", "recovery", "cooldown"]},
					"instructions": {"type": "string"}
				}
			}
		}
	}
}`

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```\nanything else", `{"a": 1}`},
		{"prose around", `Sure! {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"braces in strings", `{"a": "}{"}`, `{"a": "}{"}`},
		{"array", `[1, 2, 3]`, `[1, 2, 3]`},
		{"no json", `sorry, I cannot do that`, ""},
		{"unbalanced", `{"a": 1`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(ExtractJSON(tc.in))
			if got != tc.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompleteStructured(t *testing.T) {
	schema, err := CompileSchema("steps.json", []byte(stepSchema))
	if err != nil {
		t.Fatalf("CompileSchema failed: %v", err)
	}

	good := &Static{Responses: []string{
		"```json\n{\"steps\": [{\"step_type\": \"warmup\", \"instructions\": \"10 min easy\"}]}\n```",
	}}
	out, err := CompleteStructured(context.Background(), good, "sys", "user", schema)
	if err != nil {
		t.Fatalf("CompleteStructured failed: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected JSON payload")
	}

	badEnum := &Static{Responses: []string{`{"steps": [{"step_type": "sprint", "instructions": "go"}]}`}}
	if _, err := CompleteStructured(context.Background(), badEnum, "sys", "user", schema); err == nil {
		t.Error("expected schema validation failure for unknown step_type")
	}

	noJSON := &Static{Responses: []string{"I would suggest an easy run."}}
	if _, err := CompleteStructured(context.Background(), noJSON, "sys", "user", schema); err == nil {
		t.Error("expected error when output has no JSON")
	}
}

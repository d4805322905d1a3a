package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON extracts the first JSON object or array from a potentially
// mixed-format completion. Models wrap JSON in prose or markdown fences
// more often than not; brace matching inside the raw text is the reliable
// way to recover it.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	if alt := strings.Index(text, "["); start == -1 || (alt != -1 && alt < start) {
		start = alt
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}

// CompleteJSON prompts the client and unmarshals the first JSON object of
// the completion into out. schemaHint is appended to the system prompt so
// the model knows the exact shape expected; providers without API-level
// schema enforcement follow it via instruction.
func CompleteJSON(ctx context.Context, client Client, systemPrompt, userPrompt, schemaHint string, out any) error {
	system := systemPrompt
	if schemaHint != "" {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this schema, and nothing else:\n" + schemaHint)
	}

	completion, err := client.CompleteWithSystem(ctx, system, userPrompt)
	if err != nil {
		return err
	}

	raw := ExtractJSON(completion)
	if raw == "" {
		return fmt.Errorf("no JSON object in completion: %q", truncate(completion, 120))
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to parse completion JSON: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

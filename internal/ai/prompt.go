package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed prompts/new_observed.txt
var newObservedPrompt string

//go:embed prompts/existing_observed.txt
var existingObservedPrompt string

var existingObservedTemplate = template.Must(template.New("existing").Parse(existingObservedPrompt))

// BuildPrompt renders the suggestion prompt for the context.
func BuildPrompt(sc SuggestionContext) (string, error) {
	if sc.Type != ContextExisting {
		return strings.TrimSpace(newObservedPrompt), nil
	}

	data := struct {
		ID        string
		Status    string
		ExpiresAt string
		Zones     string
	}{
		ID:        orDefault(sc.UserID, "N/A"),
		Status:    orDefault(sc.Status, "unknown"),
		ExpiresAt: "N/A",
		Zones:     "None",
	}
	if sc.ExpiresAt != nil {
		data.ExpiresAt = sc.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if len(sc.Zones) > 0 {
		data.Zones = strings.Join(sc.Zones, ", ")
	}

	return renderPrompt(existingObservedTemplate, data)
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// cleanSuggestion trims whitespace and wrapping quotes from a model reply.
func cleanSuggestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	return strings.TrimSpace(s)
}

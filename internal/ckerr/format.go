package ckerr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display: a message line,
// an optional hint, and the kind for scripted grep-ability.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	ce, ok := err.(*Error)
	if !ok {
		ce = Wrap(KindInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))
	if ce.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ce.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Kind: %s\n", ce.Kind))
	return sb.String()
}

// jsonError is the NDJSON-friendly representation used by spec.md §6's
// machine-readable output mode.
type jsonError struct {
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON returns the JSON representation of err.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	ce, ok := err.(*Error)
	if !ok {
		ce = Wrap(KindInternal, err)
	}

	je := jsonError{
		Kind:       string(ce.Kind),
		Message:    ce.Message,
		Details:    ce.Details,
		Suggestion: ce.Suggestion,
	}
	if ce.Cause != nil {
		je.Cause = ce.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns key/value pairs suitable for slog.Any/slog.Group,
// used by internal/logging when a handler logs an error value.
func LogAttrs(err error) map[string]any {
	if err == nil {
		return nil
	}
	ce, ok := err.(*Error)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	attrs := map[string]any{
		"error_kind": string(ce.Kind),
		"message":    ce.Message,
	}
	if ce.Cause != nil {
		attrs["cause"] = ce.Cause.Error()
	}
	if ce.Suggestion != "" {
		attrs["suggestion"] = ce.Suggestion
	}
	for k, v := range ce.Details {
		attrs["detail_"+k] = v
	}
	return attrs
}

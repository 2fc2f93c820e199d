package errs

import (
	"fmt"
	"strings"
)

// Explain formats err for a human, appending its Suggestion() when the
// error implements Suggester. Unlike the typed errors above, Explain
// never changes retry behavior -- it is purely a presentation helper for
// whatever surfaces progress events to a terminal.
func Explain(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(err.Error())

	if s, ok := err.(Suggester); ok {
		if suggestion := s.Suggestion(); suggestion != "" {
			sb.WriteString("\nSuggestion: ")
			sb.WriteString(suggestion)
		}
	}

	if r, ok := err.(Recoverable); ok {
		sb.WriteString(fmt.Sprintf(" [severity=%s recoverable=%t]", r.Severity(), r.Recoverable()))
	}

	return sb.String()
}

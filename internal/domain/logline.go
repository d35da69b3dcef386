package domain

import "strings"

// Severity classifies a tailed log line.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ClassifiedLine is one non-blank log line with its severity.
type ClassifiedLine struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// ClassifyLine assigns a severity by substring match.
func ClassifyLine(line string) Severity {
	switch {
	case strings.Contains(line, "Error:"):
		return SeverityError
	case strings.Contains(line, "Warning:"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

package steps

import (
	"bytes"
	"strings"
)

// maxDiagnosticLines bounds the diagnostic kept from step output.
const maxDiagnosticLines = 40

// diagnostic picks the text describing a failed step: stderr when the step
// wrote any, otherwise the tail of stdout, otherwise fallback.
func diagnostic(stdout, stderr []byte, fallback string) string {
	if s := tail(stderr, maxDiagnosticLines); s != "" {
		return s
	}
	if s := tail(stdout, maxDiagnosticLines); s != "" {
		return s
	}
	return fallback
}

// tail returns the last n lines of b with surrounding whitespace trimmed.
func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	lines := strings.Split(string(b), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

package publish

import (
	"strings"

	"github.com/buger/jsonparser"
)

const (
	reasonHostNotFound       = "Registry hostname not found"
	reasonConnectionRefused  = "Connection refused"
	reasonConnectionTimedOut = "Connection timed out"
	reasonServiceUnavailable = "Service unavailable"

	maxRawFailureLength = 200
)

// ClassifyRegistryFailure maps the combined output of a failed registry probe
// to a small actionable taxonomy. Known patterns are checked in precedence
// order; anything else falls back to the npm JSON error payload, then to the
// raw output truncated to 200 characters.
func ClassifyRegistryFailure(combinedOutput string) string {
	lower := strings.ToLower(combinedOutput)
	switch {
	case strings.Contains(lower, "enotfound") || strings.Contains(lower, "getaddrinfo"):
		return reasonHostNotFound
	case strings.Contains(lower, "econnrefused") || strings.Contains(lower, "connection refused"):
		return reasonConnectionRefused
	case strings.Contains(lower, "etimedout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return reasonConnectionTimedOut
	case strings.Contains(lower, "503"):
		return reasonServiceUnavailable
	}
	if reason := npmErrorPayload(combinedOutput); reason != "" {
		return reason
	}
	trimmed := strings.TrimSpace(combinedOutput)
	if len(trimmed) > maxRawFailureLength {
		trimmed = trimmed[:maxRawFailureLength]
	}
	return trimmed
}

// npmErrorPayload extracts the summary (or code) field from an npm JSON error
// body, e.g. {"error":{"code":"E401","summary":"..."}}.
func npmErrorPayload(output string) string {
	start := strings.Index(output, "{")
	if start < 0 {
		return ""
	}
	data := []byte(output[start:])
	if summary, err := jsonparser.GetString(data, "error", "summary"); err == nil && summary != "" {
		return summary
	}
	if code, err := jsonparser.GetString(data, "error", "code"); err == nil && code != "" {
		return code
	}
	return ""
}

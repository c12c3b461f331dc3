package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential material before it reaches a log sink.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"component":  {},
	"error":      {},
	"reason":     {},
	"account":    {},
	"collateral": {},
	"operation":  {},
}

// IsAllowlisted reports whether the key may be logged with its raw value.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue masks non-empty values. Empty values pass through unchanged so
// absent fields stay visibly absent.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog attribute whose value is masked unless the key is
// allowlisted. Bearer tokens and shared secrets must go through this before
// being attached to a log record.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive log values.
const RedactedValue = "[REDACTED]"

// sensitiveKeys name log fields that carry credentials or connection
// endpoints, such as the projection DSN.
var sensitiveKeys = map[string]struct{}{
	"dsn":      {},
	"password": {},
	"secret":   {},
	"token":    {},
}

// MaskField returns a slog.Attr whose value is redacted when the key is known
// to carry credentials. Empty values pass through so absent settings stay
// readable in logs.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}

package tracing

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
)

const maxAttributeLength = 256

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"tenant_name":  {},
	"http.url":     {},
	"http.query":   {},
	"request_body": {},
}

// SafeAttributes drops attributes that may carry tenant data and truncates
// long string values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			value := strings.TrimSpace(attr.Value.AsString())
			if len(value) > maxAttributeLength {
				value = value[:maxAttributeLength]
			}
			attr = attribute.String(string(attr.Key), value)
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error carrying only the redactable-safe part of err.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := errors.Redact(err)
	if strings.TrimSpace(msg) == "" {
		return nil
	}
	return errors.New(msg)
}

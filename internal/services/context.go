package services

import "context"

type contextKey string

const (
	triggerKey   contextKey = "trigger"
	tagKey       contextKey = "tag"
	requestIDKey contextKey = "request_id"
)

// WithTrigger annotates context with the source of a request (rfid, api, ipc, mpris).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	if trigger == "" {
		return ctx
	}
	return context.WithValue(ctx, triggerKey, trigger)
}

// TriggerFromContext returns the request source if present.
func TriggerFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(triggerKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTag annotates context with the scanned tag identifier.
func WithTag(ctx context.Context, tag string) context.Context {
	if tag == "" {
		return ctx
	}
	return context.WithValue(ctx, tagKey, tag)
}

// TagFromContext returns the tag identifier if present.
func TagFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tagKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

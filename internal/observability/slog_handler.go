package observability

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	mxHostKey contextKey = iota
	messageIDKey
)

// WithMXHost returns a context carrying the MX host a delivery attempt is
// currently targeting, picked up by DeliveryHandler.
func WithMXHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, mxHostKey, host)
}

// WithMessageID returns a context carrying the Message-ID of the message
// being delivered, picked up by DeliveryHandler.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey, id)
}

// DeliveryHandler wraps a slog.Handler and tags every record with the MX
// host and message ID active in the call's context, if any. There is no
// span to inherit here, since one send walks through several independent
// SMTP sessions rather than one request, so the host/message pair is the
// thing worth correlating log lines by instead.
type DeliveryHandler struct {
	inner slog.Handler
}

// NewDeliveryHandler wraps the given handler with MX host / message ID
// tagging.
func NewDeliveryHandler(inner slog.Handler) *DeliveryHandler {
	return &DeliveryHandler{inner: inner}
}

func (h *DeliveryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *DeliveryHandler) Handle(ctx context.Context, record slog.Record) error {
	if host, ok := ctx.Value(mxHostKey).(string); ok && host != "" {
		record.AddAttrs(slog.String("mx_host", host))
	}
	if id, ok := ctx.Value(messageIDKey).(string); ok && id != "" {
		record.AddAttrs(slog.String("message_id", id))
	}
	return h.inner.Handle(ctx, record)
}

func (h *DeliveryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DeliveryHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *DeliveryHandler) WithGroup(name string) slog.Handler {
	return &DeliveryHandler{inner: h.inner.WithGroup(name)}
}

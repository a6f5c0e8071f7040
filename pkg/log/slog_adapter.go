package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events into an slog.Logger at debug level,
// one "protocol" record per event.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes event when the logger has debug enabled.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "protocol", eventAttrs(event)...)
}

func eventAttrs(event Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}

	switch {
	case event.Frame != nil:
		return append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated))
	case event.Message != nil:
		return append(attrs, messageAttrs(event.Message)...)
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState))
		return appendNonEmpty(attrs, "reason", sc.Reason)
	case event.ControlMsg != nil:
		return append(attrs,
			slog.String("ctrl_type", event.ControlMsg.Type.String()),
			slog.Uint64("seq", uint64(event.ControlMsg.Sequence)))
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message))
		attrs = appendNonEmpty(attrs, "error_kind", event.Error.Kind)
		return appendNonEmpty(attrs, "error_context", event.Error.Context)
	case event.Tag != nil:
		tag := event.Tag
		attrs = append(attrs,
			slog.String("action", tag.Action.String()),
			slog.String("item", tag.ItemID))
		if tag.Interval > 0 {
			attrs = append(attrs, slog.Duration("interval", tag.Interval))
		}
		if tag.GroupID != 0 {
			attrs = append(attrs, slog.Uint64("group_id", tag.GroupID))
		}
	}
	return attrs
}

func messageAttrs(msg *MessageEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.Uint64("msg_id", uint64(msg.MessageID)),
		slog.String("msg_type", msg.Type.String()),
	}
	if msg.Operation != nil {
		attrs = append(attrs, slog.String("operation", msg.Operation.String()))
	}
	if msg.Status != nil {
		attrs = append(attrs, slog.String("status", msg.Status.String()))
	}
	if msg.GroupHandle != nil {
		attrs = append(attrs, slog.Uint64("group", uint64(*msg.GroupHandle)))
	}
	if msg.ProcessingTime != nil {
		attrs = append(attrs, slog.Duration("processing_time", *msg.ProcessingTime))
	}
	return attrs
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

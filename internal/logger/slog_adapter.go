package logger

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"strings"
)

// Attribute keys that become logger prefixes instead of key=value pairs,
// so slog output lines up with the relay's own "[session 1a2b3c4d]" lines.
const (
	KeySession   = "session"
	KeyComponent = "component"
)

// NewSlogHandler returns a slog.Handler writing through l. It returns nil
// for a nil logger.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{base: l}
}

// NewStdLogger bridges hooks that take a *log.Logger, such as
// http.Server.ErrorLog, to l at a fixed level.
func NewStdLogger(l *Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(l), level)
}

type slogHandler struct {
	base   *Logger
	prefix []string // from KeySession / KeyComponent attrs, outermost first
	fields []string // preformatted key=value pairs
	group  string   // dotted group path for attrs added later
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.base.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	prefix := h.prefix
	fields := h.fields
	if r.NumAttrs() > 0 {
		prefix = append([]string(nil), prefix...)
		fields = append([]string(nil), fields...)
		r.Attrs(func(a slog.Attr) bool {
			prefix, fields = collect(prefix, fields, h.group, a)
			return true
		})
	}

	msg := r.Message
	if len(fields) > 0 {
		if msg != "" {
			msg += " "
		}
		msg += strings.Join(fields, " ")
	}

	l := h.base
	for _, p := range prefix {
		l = l.WithPrefix(p)
	}

	switch fromSlogLevel(r.Level) {
	case LevelError:
		l.Error("%s", msg)
	case LevelWarn:
		l.Warn("%s", msg)
	case LevelInfo:
		l.Info("%s", msg)
	default:
		l.Debug("%s", msg)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		next.prefix, next.fields = collect(next.prefix, next.fields, next.group, a)
	}
	return next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.group = joinKey(h.group, name)
	return next
}

func (h *slogHandler) clone() *slogHandler {
	return &slogHandler{
		base:   h.base,
		prefix: append([]string(nil), h.prefix...),
		fields: append([]string(nil), h.fields...),
		group:  h.group,
	}
}

// collect appends a to either the prefix list or the field list. Only
// top-level prefix keys are lifted; inside a group they stay fields.
func collect(prefix, fields []string, group string, a slog.Attr) ([]string, []string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return prefix, fields
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = joinKey(group, a.Key)
		}
		for _, nested := range a.Value.Group() {
			prefix, fields = collect(prefix, fields, sub, nested)
		}
		return prefix, fields
	}

	if group == "" && (a.Key == KeySession || a.Key == KeyComponent) {
		return append(prefix, a.Key+" "+a.Value.String()), fields
	}

	key := a.Key
	if key == "" {
		key = "attr"
	}
	return prefix, append(fields, joinKey(group, key)+"="+formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " \t\n\"=")) {
		return strconv.Quote(s)
	}
	return s
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

package logging

import (
	"context"
	"log/slog"
)

// sensitiveKeys are masked before a record reaches any sink. OTP codes, bank
// details and credentials must never land in stdout or system_logs.
var sensitiveKeys = map[string]bool{
	"code":           true,
	"otp":            true,
	"password":       true,
	"token":          true,
	"refresh_token":  true,
	"account_number": true,
	"ifsc_code":      true,
	"authorization":  true,
}

const redacted = "[REDACTED]"

// Redactor masks sensitive attributes and forwards each record to every sink
// that accepts its level.
type Redactor struct {
	sinks []slog.Handler
}

func (r *Redactor) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range r.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (r *Redactor) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redact(a))
		return true
	})

	var firstErr error
	for _, s := range r.sinks {
		if !s.Enabled(ctx, record.Level) {
			continue
		}
		// one failing sink must not starve the others
		if err := s.Handle(ctx, clean.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Redactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redact(a)
	}
	sinks := make([]slog.Handler, len(r.sinks))
	for i, s := range r.sinks {
		sinks[i] = s.WithAttrs(masked)
	}
	return &Redactor{sinks: sinks}
}

func (r *Redactor) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(r.sinks))
	for i, s := range r.sinks {
		sinks[i] = s.WithGroup(name)
	}
	return &Redactor{sinks: sinks}
}

func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, len(group))
		for i, g := range group {
			masked[i] = redact(g)
		}
		return slog.Group(a.Key, masked...)
	}
	if sensitiveKeys[a.Key] {
		return slog.String(a.Key, redacted)
	}
	return a
}

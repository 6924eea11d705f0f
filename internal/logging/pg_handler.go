package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pgBatchSize     = 50
	pgMaxBuffered   = 1000
	pgFlushInterval = 5 * time.Second
)

// pgSink owns the buffer shared by a PGHandler and every handler derived
// from it through WithAttrs.
type pgSink struct {
	db      *gorm.DB
	mu      sync.Mutex
	pending []models.SystemLog
	dropped int
	kick    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// PGHandler persists ERROR and above into system_logs in batches, so
// operators can query failures by request, user or pickup. Once
// pgMaxBuffered entries are waiting, newer records are counted and dropped.
type PGHandler struct {
	sink  *pgSink
	attrs []slog.Attr
}

func NewPGHandler(db *gorm.DB) *PGHandler {
	s := &pgSink{
		db:      db,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return &PGHandler{sink: s}
}

func (s *pgSink) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(pgFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-s.kick:
		case <-s.stop:
			s.flush()
			return
		}
		s.flush()
	}
}

func (s *pgSink) flush() {
	s.mu.Lock()
	batch, dropped := s.pending, s.dropped
	s.pending, s.dropped = nil, 0
	s.mu.Unlock()

	if dropped > 0 {
		// stdout only; routing this through slog would loop back here
		slog.New(slog.NewJSONHandler(stdout, nil)).Warn("system log buffer overflow", "dropped", dropped)
	}
	if len(batch) == 0 {
		return
	}
	if err := s.db.CreateInBatches(batch, pgBatchSize).Error; err != nil {
		slog.New(slog.NewJSONHandler(stdout, nil)).Warn("system log flush failed", "error", err, "count", len(batch))
	}
}

func (s *pgSink) push(entry models.SystemLog) {
	s.mu.Lock()
	if len(s.pending) >= pgMaxBuffered {
		s.dropped++
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, entry)
	full := len(s.pending) >= pgBatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Stop flushes whatever is buffered and ends the background writer.
func (h *PGHandler) Stop() {
	h.sink.once.Do(func() { close(h.sink.stop) })
	<-h.sink.stopped
}

func (h *PGHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *PGHandler) Handle(_ context.Context, record slog.Record) error {
	entry := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	extra := map[string]any{}

	for _, a := range h.attrs {
		assign(&entry, extra, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		assign(&entry, extra, a)
		return true
	})

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}
	h.sink.push(entry)
	return nil
}

// assign maps well-known attributes onto system_logs columns and collects
// everything else into extra.
func assign(entry *models.SystemLog, extra map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	switch a.Key {
	case "request_id":
		entry.RequestID = v.String()
	case "user_id", "actor_id":
		id := v.String()
		entry.UserID = &id
	case "pickup_id":
		id := v.String()
		entry.PickupID = &id
	case "action", "event":
		entry.Action = v.String()
	case "error":
		entry.Error = v.String()
	case "latency_ms":
		switch v.Kind() {
		case slog.KindFloat64:
			entry.LatencyMs = int(math.Round(v.Float64()))
		case slog.KindInt64:
			entry.LatencyMs = int(v.Int64())
		case slog.KindDuration:
			entry.LatencyMs = int(v.Duration().Milliseconds())
		}
	default:
		extra[a.Key] = v.Any()
	}
}

func (h *PGHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PGHandler{sink: h.sink, attrs: merged}
}

// WithGroup is a no-op; system_logs has no nesting.
func (h *PGHandler) WithGroup(string) slog.Handler {
	return h
}

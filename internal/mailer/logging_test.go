package mailer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/types"
)

// captureHandler is a slog.Handler that collects records for assertions.
type captureHandler struct {
	mu      sync.Mutex
	records []capturedRecord
	bound   []slog.Attr
}

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.bound {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, capturedRecord{level: r.Level, msg: r.Message, attrs: attrs})
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := append(append([]slog.Attr{}, h.bound...), attrs...)
	return &boundHandler{parent: h, bound: bound}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// boundHandler forwards to the parent capture while carrying With-bound attrs.
type boundHandler struct {
	parent *captureHandler
	bound  []slog.Attr
}

func (h *boundHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *boundHandler) Handle(ctx context.Context, r slog.Record) error {
	saved := h.parent.bound
	h.parent.bound = h.bound
	err := h.parent.Handle(ctx, r)
	h.parent.bound = saved
	return err
}

func (h *boundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &boundHandler{parent: h.parent, bound: append(append([]slog.Attr{}, h.bound...), attrs...)}
}

func (h *boundHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) last(t *testing.T) capturedRecord {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.records)
	return h.records[len(h.records)-1]
}

func newTestLogService(t *testing.T) (*LogService, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	return NewLogService(slog.New(h), ""), h
}

func TestSlogAdapterForwardsLevelsAndFields(t *testing.T) {
	h := &captureHandler{}
	adapter := NewSlogAdapter(slog.New(h))

	adapter.Info("runner started", "task", "send_reminders")
	rec := h.last(t)
	assert.Equal(t, slog.LevelInfo, rec.level)
	assert.Equal(t, "runner started", rec.msg)
	assert.Equal(t, "send_reminders", rec.attrs["task"])

	adapter.With("round_id", "round_7").Error("scoring failed")
	rec = h.last(t)
	assert.Equal(t, slog.LevelError, rec.level)
	assert.Equal(t, "round_7", rec.attrs["round_id"])
}

func TestLogServiceCorrelationID(t *testing.T) {
	svc := NewLogService(slog.New(&captureHandler{}), "corr-1")
	assert.Equal(t, "corr-1", svc.CorrelationID())

	rotated := svc.RotateCorrelationID()
	assert.NotEmpty(t, rotated)
	assert.NotEqual(t, "corr-1", rotated)
	assert.Equal(t, rotated, svc.CorrelationID())
}

func TestLogServiceGeneratesCorrelationID(t *testing.T) {
	svc, h := newTestLogService(t)
	assert.NotEmpty(t, svc.CorrelationID())

	svc.LogOperationStart(StageValidation, LogContext{})
	rec := h.last(t)
	assert.Equal(t, svc.CorrelationID(), rec.attrs["correlation_id"])
}

func TestLogServiceMasksRecipient(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogOperationStart(StageEmailSend, LogContext{
		RecipientEmail: "abcdef@example.com",
	})

	rec := h.last(t)
	assert.Equal(t, "ab****@example.com", rec.attrs["recipient"])
	assert.Equal(t, "email_send", rec.attrs["stage"])
}

func TestLogServiceMasksSensitiveMetadata(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogOperationError(StageDataFetch, LogContext{
		Metadata: map[string]any{"password": "x", "note": "y"},
	}, nil)

	rec := h.last(t)
	meta, ok := rec.attrs["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[MASKED]", meta["password"])
	assert.Equal(t, "y", meta["note"])
}

func TestChildLoggerSanitizesContext(t *testing.T) {
	svc, h := newTestLogService(t)

	child := svc.ChildLogger(LogContext{
		RecipientEmail: "claus.pedersen@example.no",
		Metadata:       map[string]any{"auth_header": "Bearer xyz", "round": "r1"},
	})
	child.Info("sending")

	rec := h.last(t)
	assert.Equal(t, "cl************@example.no", rec.attrs["recipient"])
	meta, ok := rec.attrs["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[MASKED]", meta["auth_header"])
	assert.Equal(t, "r1", meta["round"])
	assert.Equal(t, svc.CorrelationID(), rec.attrs["correlation_id"])
}

func TestLogEmailValidationLevels(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogEmailValidation(LogContext{}, true, nil)
	assert.Equal(t, slog.LevelInfo, h.last(t).level)

	svc.LogEmailValidation(LogContext{}, false, []string{"missing @"})
	rec := h.last(t)
	assert.Equal(t, slog.LevelWarn, rec.level)
	assert.Equal(t, false, rec.attrs["is_valid"])
}

func TestLogBatchProgressPercentage(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogBatchProgress(LogContext{BatchID: "b1"}, 3, 10)
	rec := h.last(t)
	assert.EqualValues(t, 30, rec.attrs["completion_percentage"])

	svc.LogBatchProgress(LogContext{BatchID: "b1"}, 1, 3)
	assert.EqualValues(t, 33, h.last(t).attrs["completion_percentage"])
}

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{3, 10, 30},
		{1, 3, 33},
		{2, 3, 67},
		{0, 5, 0},
		{5, 5, 100},
		{1, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompletionPercentage(tt.processed, tt.total),
			"(%d,%d)", tt.processed, tt.total)
	}
}

func TestLogRetryAttemptFields(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogRetryAttempt(LogContext{RecipientEmail: "abcdef@x.no"}, 2, 3, 4*time.Second, "provider 429")

	rec := h.last(t)
	assert.Equal(t, slog.LevelWarn, rec.level)
	assert.EqualValues(t, 2, rec.attrs["retry_attempt"])
	assert.EqualValues(t, 3, rec.attrs["retry_max"])
	assert.EqualValues(t, 4000, rec.attrs["retry_delay_ms"])
	assert.Equal(t, "provider 429", rec.attrs["retry_reason"])
}

func TestLogSystemHealthLevelSelection(t *testing.T) {
	svc, h := newTestLogService(t)

	svc.LogSystemHealth(HealthMetrics{Status: types.HealthHealthy})
	assert.Equal(t, slog.LevelInfo, h.last(t).level)

	svc.LogSystemHealth(HealthMetrics{Status: types.HealthDegraded})
	assert.Equal(t, slog.LevelWarn, h.last(t).level)

	svc.LogSystemHealth(HealthMetrics{Status: types.HealthUnhealthy})
	assert.Equal(t, slog.LevelError, h.last(t).level)
}

func TestLogServiceNeverPanics(t *testing.T) {
	// A nil inner logger would panic on emission; the service must swallow it.
	svc := &LogService{logger: nil, correlationID: "c"}
	assert.NotPanics(t, func() {
		svc.LogOperationStart(StageValidation, LogContext{})
		svc.LogBatchProgress(LogContext{}, 1, 2)
		svc.LogSystemHealth(HealthMetrics{Status: types.HealthHealthy})
	})
}

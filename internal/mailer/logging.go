package mailer

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"tippslottet/internal/types"
)

// Stage identifies one step of the email-sending pipeline in log output.
type Stage string

const (
	StageValidation     Stage = "validation"
	StageDataFetch      Stage = "data_fetch"
	StageTemplateRender Stage = "template_render"
	StageEmailSend      Stage = "email_send"
	StageWebhookProcess Stage = "webhook_process"
	StageRetry          Stage = "retry"
	StageComplete       Stage = "complete"
)

// LogContext carries the optional contextual fields attached to email
// pipeline log entries. RecipientEmail and any metadata value under a
// sensitive key are masked before reaching any sink.
type LogContext struct {
	OperationID    string
	CorrelationID  string
	UserID         string
	RoundID        string
	EmailType      types.EmailType
	RecipientEmail string
	TemplateName   string
	Provider       string
	BatchID        string
	RetryAttempt   int
	Duration       time.Duration
	Metadata       map[string]any
}

// HealthMetrics is the input to LogSystemHealth. Status selects the log
// level: healthy logs at info, degraded at warn, unhealthy at error.
type HealthMetrics struct {
	Status       types.HealthStatus
	QueueDepth   int
	SuccessRate  float64
	TotalErrors  int
	AvgLatencyMS float64
}

// LogService produces structured, privacy-scrubbed log entries for every
// stage of the email pipeline, correlating multi-step operations under one
// correlation id. Instances are created per logical operation (optionally
// with a caller-supplied correlation id) and hold no state beyond the
// rotating correlation id.
//
// Every method is a best-effort side-effecting emission: none return errors
// and none propagate panics to the caller. The service is diagnostic only
// and must never fail the operation it observes.
type LogService struct {
	logger *slog.Logger

	mu            sync.Mutex
	correlationID string
}

// NewLogService creates a LogService writing through the given slog logger.
// If correlationID is empty a fresh one is generated.
func NewLogService(logger *slog.Logger, correlationID string) *LogService {
	if logger == nil {
		logger = slog.Default()
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return &LogService{
		logger:        logger,
		correlationID: correlationID,
	}
}

// CorrelationID returns the id currently threaded through this instance's
// log entries.
func (s *LogService) CorrelationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correlationID
}

// RotateCorrelationID replaces the instance's correlation id and returns the
// new value. Only subsequent log calls on this instance are affected.
func (s *LogService) RotateCorrelationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlationID = uuid.New().String()
	return s.correlationID
}

// ChildLogger returns a logger bound to the sanitized context: masked
// recipient email, masked sensitive metadata keys, and the service's
// correlation id injected if the context carries none.
func (s *LogService) ChildLogger(ctx LogContext) types.Logger {
	return &slogAdapter{logger: s.logger.With(s.contextAttrs(ctx)...)}
}

// LogOperationStart emits an info record marking the beginning of a stage.
func (s *LogService) LogOperationStart(stage Stage, ctx LogContext) {
	s.emit(slog.LevelInfo, "email operation stage started", stage, ctx, nil)
}

// LogOperationComplete emits an info record marking the successful end of a
// stage.
func (s *LogService) LogOperationComplete(stage Stage, ctx LogContext) {
	s.emit(slog.LevelInfo, "email operation stage completed", stage, ctx, []any{
		slog.Bool("success", true),
	})
}

// LogOperationError emits an error record for a failed stage. A nil err is
// tolerated and logged without an error attribute.
func (s *LogService) LogOperationError(stage Stage, ctx LogContext, err error) {
	attrs := []any{slog.Bool("success", false)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.emit(slog.LevelError, "email operation stage failed", stage, ctx, attrs)
}

// LogEmailValidation records the outcome of recipient/content validation.
// Validation failure is logged but the decision to skip or abort stays with
// the caller.
func (s *LogService) LogEmailValidation(ctx LogContext, isValid bool, validationErrors []string) {
	attrs := []any{slog.Bool("is_valid", isValid)}
	if len(validationErrors) > 0 {
		attrs = append(attrs, slog.Any("validation_errors", validationErrors))
	}
	level := slog.LevelInfo
	if !isValid {
		level = slog.LevelWarn
	}
	s.emit(level, "email validation", StageValidation, ctx, attrs)
}

// LogTemplateRendering records a template render with its duration and the
// size of the rendered body.
func (s *LogService) LogTemplateRendering(ctx LogContext, renderTime time.Duration, templateSize int) {
	s.emit(slog.LevelInfo, "email template rendered", StageTemplateRender, ctx, []any{
		slog.Int64("render_time_ms", renderTime.Milliseconds()),
		slog.Int("template_size_bytes", templateSize),
	})
}

// LogEmailSending records a provider send attempt and its result.
func (s *LogService) LogEmailSending(ctx LogContext, messageID string, statusCode int) {
	s.emit(slog.LevelInfo, "email dispatched to provider", StageEmailSend, ctx, []any{
		slog.String("message_id", messageID),
		slog.Int("provider_status", statusCode),
	})
}

// LogBatchProgress records batch completion as round(processed/total*100).
// A non-positive total yields 0 percent rather than dividing by zero.
func (s *LogService) LogBatchProgress(ctx LogContext, processed, total int) {
	s.emit(slog.LevelInfo, "email batch progress", StageEmailSend, ctx, []any{
		slog.Int("processed", processed),
		slog.Int("total", total),
		slog.Int("completion_percentage", CompletionPercentage(processed, total)),
	})
}

// LogWebhookEvent records receipt of a provider delivery webhook.
func (s *LogService) LogWebhookEvent(ctx LogContext, eventType string, messageID string) {
	s.emit(slog.LevelInfo, "email webhook received", StageWebhookProcess, ctx, []any{
		slog.String("webhook_event", eventType),
		slog.String("message_id", messageID),
	})
}

// LogRetryAttempt records a caller-driven retry. The limiter itself never
// retries; this is an observability hook only.
func (s *LogService) LogRetryAttempt(ctx LogContext, attempt, maxAttempts int, delay time.Duration, reason string) {
	s.emit(slog.LevelWarn, "email send retry scheduled", StageRetry, ctx, []any{
		slog.Int("retry_attempt", attempt),
		slog.Int("retry_max", maxAttempts),
		slog.Int64("retry_delay_ms", delay.Milliseconds()),
		slog.String("retry_reason", reason),
	})
}

// LogSystemHealth emits a process-wide health record, not scoped to any
// operation. The level follows metrics.Status: healthy logs at info,
// degraded at warn, unhealthy at error.
func (s *LogService) LogSystemHealth(metrics HealthMetrics) {
	defer swallowPanic()

	level := slog.LevelInfo
	switch metrics.Status {
	case types.HealthDegraded:
		level = slog.LevelWarn
	case types.HealthUnhealthy:
		level = slog.LevelError
	}

	s.logger.Log(context.Background(), level, "email system health",
		slog.String("status", string(metrics.Status)),
		slog.Int("queue_depth", metrics.QueueDepth),
		slog.Float64("success_rate", metrics.SuccessRate),
		slog.Int("total_errors", metrics.TotalErrors),
		slog.Float64("avg_latency_ms", metrics.AvgLatencyMS),
	)
}

// CompletionPercentage computes round(processed/total*100). Non-positive
// totals yield 0.
func CompletionPercentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// emit writes one structured record with the sanitized context attached.
// Panics from attribute handling or the sink are swallowed: logging is
// best-effort and must never fail the observed operation.
func (s *LogService) emit(level slog.Level, msg string, stage Stage, ctx LogContext, extra []any) {
	defer swallowPanic()

	attrs := s.contextAttrs(ctx)
	attrs = append(attrs, slog.String("stage", string(stage)))
	attrs = append(attrs, extra...)

	s.logger.Log(context.Background(), level, msg, attrs...)
}

// contextAttrs converts a LogContext into slog attributes, masking the
// recipient email and sensitive metadata keys, and injecting the service's
// correlation id when the context carries none.
func (s *LogService) contextAttrs(ctx LogContext) []any {
	correlationID := ctx.CorrelationID
	if correlationID == "" {
		correlationID = s.CorrelationID()
	}

	attrs := []any{slog.String("correlation_id", correlationID)}

	if ctx.OperationID != "" {
		attrs = append(attrs, slog.String("operation_id", ctx.OperationID))
	}
	if ctx.UserID != "" {
		attrs = append(attrs, slog.String("user_id", ctx.UserID))
	}
	if ctx.RoundID != "" {
		attrs = append(attrs, slog.String("round_id", ctx.RoundID))
	}
	if ctx.EmailType != "" {
		attrs = append(attrs, slog.String("email_type", string(ctx.EmailType)))
	}
	if ctx.RecipientEmail != "" {
		attrs = append(attrs, slog.String("recipient", MaskEmail(ctx.RecipientEmail)))
	}
	if ctx.TemplateName != "" {
		attrs = append(attrs, slog.String("template", ctx.TemplateName))
	}
	if ctx.Provider != "" {
		attrs = append(attrs, slog.String("provider", ctx.Provider))
	}
	if ctx.BatchID != "" {
		attrs = append(attrs, slog.String("batch_id", ctx.BatchID))
	}
	if ctx.RetryAttempt > 0 {
		attrs = append(attrs, slog.Int("retry_attempt", ctx.RetryAttempt))
	}
	if ctx.Duration > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", ctx.Duration.Milliseconds()))
	}
	if len(ctx.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", MaskMetadata(ctx.Metadata)))
	}

	return attrs
}

// swallowPanic is the last-resort catch keeping log emission from ever
// propagating a failure into the email pipeline.
func swallowPanic() {
	_ = recover()
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info/Error/Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// NewSlogAdapter wraps an *slog.Logger as a types.Logger for injection into
// components that take the interface.
func NewSlogAdapter(logger *slog.Logger) types.Logger {
	return &slogAdapter{logger: logger}
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)

// Package monitoring aggregates email operation records into the dashboard
// and health summaries served by the email-ops endpoints. Section collectors
// run concurrently and fail independently: a broken collector degrades its own
// section to "unknown" but never prevents the rest of the dashboard from
// rendering.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"tippslottet/internal/types"
)

// DefaultWindow is the aggregation window used when the caller does not
// specify one.
const DefaultWindow = 24 * time.Hour

// Section status thresholds, expressed as success-rate percentages.
const (
	healthySuccessRate  = 98.0
	degradedSuccessRate = 90.0
	healthyQueueDepth   = 50
)

// Aggregates summarizes email operation records over a window.
type Aggregates struct {
	TotalOperations int
	EmailsSent      int
	TotalErrors     int
	SuccessRate     float64 // percentage, 0..100
	AvgDurationMS   float64
}

// ErrorStats summarizes failed operations over a window. CriticalIssues names
// pipeline stages with repeated failures.
type ErrorStats struct {
	TotalErrors    int
	CriticalIssues []string
	ByStage        map[string]int
}

// Store provides the aggregate queries backing the dashboard sections.
type Store interface {
	OperationAggregates(ctx context.Context, since time.Time) (Aggregates, error)
	ErrorStats(ctx context.Context, since time.Time) (ErrorStats, error)
}

// QueueProbe reports the current depth of the outbound email queue.
type QueueProbe interface {
	Pending() int
}

// HealthSection reports queue and delivery health.
type HealthSection struct {
	Status      types.HealthStatus `json:"status"`
	QueueDepth  int                `json:"queueDepth"`
	SuccessRate float64            `json:"successRate"`
	Error       string             `json:"error,omitempty"`
}

// ErrorSection reports error counts and critical issues.
type ErrorSection struct {
	Status         types.HealthStatus `json:"status"`
	TotalErrors    int                `json:"totalErrors"`
	CriticalIssues []string           `json:"criticalIssues"`
	ByStage        map[string]int     `json:"byStage,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// MetricsSection reports delivery volume and latency.
type MetricsSection struct {
	Status            types.HealthStatus `json:"status"`
	EmailsSent        int                `json:"emailsSent"`
	SuccessRate       float64            `json:"successRate"`
	AvgResponseTimeMS float64            `json:"avgResponseTimeMs"`
	Error             string             `json:"error,omitempty"`
}

// Sections groups the typed dashboard sections.
type Sections struct {
	Health  HealthSection  `json:"health"`
	Errors  ErrorSection   `json:"errors"`
	Metrics MetricsSection `json:"metrics"`
}

// Summary is the full dashboard payload. The top-level fields are extracted
// from the sections with zeroed defaults for sections that failed to collect.
type Summary struct {
	OverallStatus   types.HealthStatus `json:"overallStatus"`
	CriticalIssues  []string           `json:"criticalIssues"`
	TotalErrors     int                `json:"totalErrors"`
	EmailsSent      int                `json:"emailsSent"`
	SuccessRate     float64            `json:"successRate"`
	AvgResponseTime float64            `json:"avgResponseTime"`
	Window          string             `json:"window"`
	GeneratedAt     time.Time          `json:"generatedAt"`
	Sections        Sections           `json:"sections"`
}

// Dashboard builds monitoring summaries from the operation store and the live
// email queue.
type Dashboard struct {
	store  Store
	queue  QueueProbe
	logger types.Logger
	now    func() time.Time
}

// DashboardOption customizes a Dashboard.
type DashboardOption func(*Dashboard)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) DashboardOption {
	return func(d *Dashboard) {
		d.now = now
	}
}

// NewDashboard creates a Dashboard. queue may be nil when no limiter is
// running in this process (the job runner); queue depth then reports zero.
func NewDashboard(store Store, queue QueueProbe, logger types.Logger, opts ...DashboardOption) *Dashboard {
	d := &Dashboard{
		store:  store,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Summary collects all sections concurrently and combines them. A failing
// collector yields an "unknown" placeholder section with the error message
// captured; Summary itself never returns an error from a collector.
func (d *Dashboard) Summary(ctx context.Context, window time.Duration) Summary {
	if window <= 0 {
		window = DefaultWindow
	}
	since := d.now().Add(-window)

	var sections Sections

	// Each collector recovers its own failure into a placeholder, so the
	// group never sees an error and always waits for all three.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sections.Health = d.collectHealth(gctx, since)
		return nil
	})
	g.Go(func() error {
		sections.Errors = d.collectErrors(gctx, since)
		return nil
	})
	g.Go(func() error {
		sections.Metrics = d.collectMetrics(gctx, since)
		return nil
	})
	_ = g.Wait()

	overall := types.HealthHealthy
	overall = overall.Escalate(sections.Health.Status)
	overall = overall.Escalate(sections.Errors.Status)
	overall = overall.Escalate(sections.Metrics.Status)

	criticalIssues := sections.Errors.CriticalIssues
	if criticalIssues == nil {
		criticalIssues = []string{}
	}

	return Summary{
		OverallStatus:   overall,
		CriticalIssues:  criticalIssues,
		TotalErrors:     sections.Errors.TotalErrors,
		EmailsSent:      sections.Metrics.EmailsSent,
		SuccessRate:     sections.Metrics.SuccessRate,
		AvgResponseTime: sections.Metrics.AvgResponseTimeMS,
		Window:          window.String(),
		GeneratedAt:     d.now().UTC(),
		Sections:        sections,
	}
}

func (d *Dashboard) collectHealth(ctx context.Context, since time.Time) HealthSection {
	agg, err := d.store.OperationAggregates(ctx, since)
	if err != nil {
		d.logger.Warn("dashboard health section failed", "error", err.Error())
		return HealthSection{Status: types.HealthUnknown, Error: err.Error()}
	}

	depth := 0
	if d.queue != nil {
		depth = d.queue.Pending()
	}

	status := types.HealthHealthy
	switch {
	case agg.TotalOperations == 0:
		// No traffic in the window is not a failure signal.
	case agg.SuccessRate < degradedSuccessRate:
		status = types.HealthUnhealthy
	case agg.SuccessRate < healthySuccessRate || depth >= healthyQueueDepth:
		status = types.HealthDegraded
	}

	return HealthSection{
		Status:      status,
		QueueDepth:  depth,
		SuccessRate: agg.SuccessRate,
	}
}

func (d *Dashboard) collectErrors(ctx context.Context, since time.Time) ErrorSection {
	stats, err := d.store.ErrorStats(ctx, since)
	if err != nil {
		d.logger.Warn("dashboard error section failed", "error", err.Error())
		return ErrorSection{Status: types.HealthUnknown, CriticalIssues: []string{}, Error: err.Error()}
	}

	status := types.HealthHealthy
	switch {
	case len(stats.CriticalIssues) > 0:
		status = types.HealthUnhealthy
	case stats.TotalErrors > 0:
		status = types.HealthDegraded
	}

	issues := stats.CriticalIssues
	if issues == nil {
		issues = []string{}
	}

	return ErrorSection{
		Status:         status,
		TotalErrors:    stats.TotalErrors,
		CriticalIssues: issues,
		ByStage:        stats.ByStage,
	}
}

func (d *Dashboard) collectMetrics(ctx context.Context, since time.Time) MetricsSection {
	agg, err := d.store.OperationAggregates(ctx, since)
	if err != nil {
		d.logger.Warn("dashboard metrics section failed", "error", err.Error())
		return MetricsSection{Status: types.HealthUnknown, Error: err.Error()}
	}

	status := types.HealthHealthy
	switch {
	case agg.TotalOperations == 0:
	case agg.SuccessRate < degradedSuccessRate:
		status = types.HealthUnhealthy
	case agg.SuccessRate < healthySuccessRate:
		status = types.HealthDegraded
	}

	return MetricsSection{
		Status:            status,
		EmailsSent:        agg.EmailsSent,
		SuccessRate:       agg.SuccessRate,
		AvgResponseTimeMS: agg.AvgDurationMS,
	}
}

// Health is the compact payload for the email-health endpoint.
type Health struct {
	Status      types.HealthStatus `json:"status"`
	QueueDepth  int                `json:"queueDepth"`
	SuccessRate float64            `json:"successRate"`
	TotalErrors int                `json:"totalErrors"`
	CheckedAt   time.Time          `json:"checkedAt"`
	Message     string             `json:"message,omitempty"`
}

// Health evaluates the same sections as Summary and reduces them to a single
// status suitable for probes.
func (d *Dashboard) Health(ctx context.Context, window time.Duration) Health {
	summary := d.Summary(ctx, window)

	msg := ""
	if n := len(summary.CriticalIssues); n > 0 {
		msg = fmt.Sprintf("%d critical issue(s): %s", n, summary.CriticalIssues[0])
	}

	return Health{
		Status:      summary.OverallStatus,
		QueueDepth:  summary.Sections.Health.QueueDepth,
		SuccessRate: summary.SuccessRate,
		TotalErrors: summary.TotalErrors,
		CheckedAt:   summary.GeneratedAt,
		Message:     msg,
	}
}

// HTTPStatusFor maps a health status to the response code served by the
// health endpoints: 200 for healthy, 206 for degraded or unreadable, 503 for
// unhealthy.
func HTTPStatusFor(status types.HealthStatus) int {
	switch status {
	case types.HealthUnhealthy:
		return http.StatusServiceUnavailable
	case types.HealthDegraded, types.HealthUnknown:
		return http.StatusPartialContent
	default:
		return http.StatusOK
	}
}

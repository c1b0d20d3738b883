package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "dealdesk-api/api"
	tasksSpanName    = "dealdesk.tasks.request"
	tasksEventName   = "tasks.request.metrics"
	tasksEventDomain = "dealdesk.api"
	tasksRoute       = "/api/tasks"
)

// taskRequestMetrics collects per-request timings for the tasks read path and
// emits them as one span plus one structured log event.
type taskRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	fetchDuration  time.Duration
	rankDuration   time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	pinnedTasks    int
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	m := &taskRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, tasksSpanName)
	m.span = span
	return m, spanCtx
}

func (m *taskRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveRank(duration time.Duration) {
	if duration > 0 {
		m.rankDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *taskRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *taskRequestMetrics) SetPinnedTasks(count int) {
	if count < 0 {
		count = 0
	}
	m.pinnedTasks = count
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and writes the observability event. It must be
// called exactly once per request.
func (m *taskRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", tasksRoute),
		attribute.Int64("http.status_code", int64(status)),
		attribute.Float64("dealdesk.tasks.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("dealdesk.tasks.tasks_returned", m.tasksReturned),
		attribute.Int("dealdesk.tasks.pinned_tasks", m.pinnedTasks),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("dealdesk.tasks.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("dealdesk.tasks.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.rankDuration > 0 {
		attrs = append(attrs, attribute.Float64("dealdesk.tasks.rank_ms", durationToMillis(m.rankDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("dealdesk.tasks.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("dealdesk.tasks.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(attrs...))
		if err != nil || m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
			if err != nil {
				m.span.RecordError(err)
			}
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      tasksEventName,
		"event.domain":    tasksEventDomain,
		"attributes":      attrMap,
		"severity_text":   "INFO",
		"severity_number": 9,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["severity_text"] = "ERROR"
		fields["severity_number"] = 17
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

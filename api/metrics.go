package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"todo-api/domain"
)

const (
	tracerName         = "todo-api/api"
	todosSpanName      = "todos.request"
	todosEventName     = "todos.request.metrics"
	todosEventDomain   = "todo-api"
	observabilityEvent = "observability.event"
)

type requestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	method          string
	route           string
	serviceDuration time.Duration
	encodeDuration  time.Duration
	todosReturned   int
	todosAffected   int
	errorStage      string
}

// newRequestMetrics starts a server span for the request. The returned
// context carries the span and should replace the request context.
func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, todosSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:        logger,
		span:          span,
		start:         time.Now(),
		method:        method,
		route:         route,
		todosReturned: -1,
		todosAffected: -1,
	}, spanCtx
}

func (m *requestMetrics) ObserveService(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.serviceDuration = duration
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *requestMetrics) SetTodosReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.todosReturned = count
}

func (m *requestMetrics) SetTodosAffected(count int) {
	if count < 0 {
		count = 0
	}
	m.todosAffected = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log records the request outcome on the span and as a structured log entry,
// then ends the span.
func (m *requestMetrics) Log(ctx context.Context, status int, err error) {
	if m == nil {
		return
	}
	if m.span != nil {
		defer m.span.End()
	}

	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":       m.route,
		"http.method":      m.method,
		"http.status_code": status,
		"todos.total_ms":   durationToMillis(time.Since(m.start)),
	}
	if m.serviceDuration > 0 {
		attrs["todos.service_ms"] = durationToMillis(m.serviceDuration)
	}
	if m.encodeDuration > 0 {
		attrs["todos.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.todosReturned >= 0 {
		attrs["todos.returned"] = m.todosReturned
	}
	if m.todosAffected >= 0 {
		attrs["todos.affected"] = m.todosAffected
	}
	if m.errorStage != "" {
		attrs["todos.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}

	fields := log.Fields{
		"event.name":      todosEventName,
		"event.domain":    todosEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if id := domain.RequestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}

	if m.span != nil {
		m.span.SetAttributes(kvs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", todosEventName),
			attribute.String("event.domain", todosEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, kvs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			if desc == "" {
				desc = "request failed"
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case status == 0 && err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case bool:
		return attribute.Bool(key, val)
	default:
		return attribute.String(key, "")
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// responseStatus returns the status that will be sent for the handler result.
// Errors returned to echo are written after the handler, so their code wins
// when nothing has been committed yet.
func responseStatus(c echo.Context, err error) int {
	if c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return c.Response().Status
}

// instrument wraps h with request metrics.
func instrument(logger *log.Logger, route string, h func(c echo.Context, m *requestMetrics) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		req := c.Request()
		metrics, spanCtx := newRequestMetrics(req.Context(), logger, req.Method, route)
		c.SetRequest(req.WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Request().Context(), responseStatus(c, err), err)
		}()
		return h(c, metrics)
	}
}

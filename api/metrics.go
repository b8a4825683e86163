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
	tracerName       = "taskboard/api"
	boardEventName   = "board.fetch"
	boardEventDomain = "taskboard"
	boardRoute       = "/api/projects/:projectId/board"
)

// boardRequestMetrics records stage timings for a board fetch and emits
// them twice: as attributes on an otel span and as one structured log
// event per request.
type boardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	sectionCount   int
	cardCount      int
	cacheProject   string
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardEventName)
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *boardRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetProject(projectID string) {
	m.cacheProject = projectID
}

func (m *boardRequestMetrics) SetBoardSize(sections, cards int) {
	if sections < 0 {
		sections = 0
	}
	if cards < 0 {
		cards = 0
	}
	m.sectionCount = sections
	m.cardCount = cards
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the span and writes the observability event. It must be
// called exactly once per request, typically deferred.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := map[string]any{
		"http.route":              boardRoute,
		"http.status_code":        status,
		"board.project":           m.cacheProject,
		"board.sections_returned": m.sectionCount,
		"board.cards_returned":    m.cardCount,
		"total_ms":                durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		attrs["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		attrs["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		attrs["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.String("board.project", m.cacheProject),
			attribute.Int("board.sections_returned", m.sectionCount),
			attribute.Int("board.cards_returned", m.cardCount),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("error_stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":   boardEventName,
		"event.domain": boardEventDomain,
		"attributes":   attrs,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

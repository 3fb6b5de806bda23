package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/vigil/internal/jobs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// GeoResolver resolves an IP address to a location, or nil when the
// address is private, the quota is exhausted, or the lookup fails.
// Implementations must never block beyond their own timeout.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) *Location
}

// Analyzer inspects a persisted entry and returns zero or more findings.
type Analyzer interface {
	Analyze(ctx context.Context, entry *Entry) []Finding
}

// AlertSink merges a finding into the alert store.
type AlertSink interface {
	Upsert(ctx context.Context, f Finding) (*SecurityAlert, error)
}

// Dispatcher schedules asynchronous analysis work without blocking the
// caller. dispatch.Pool satisfies this.
type Dispatcher interface {
	Submit(task func(ctx context.Context))
}

// PipelineConfig configures the audit pipeline.
type PipelineConfig struct {
	// Logger for pipeline activity.
	Logger *slog.Logger
	// Metrics for event counting. Optional.
	Metrics *Metrics
	// Jobs receives duration and outcome metrics for the asynchronous
	// analysis work. Optional.
	Jobs jobs.Reporter
	// Tracer for pipeline spans. Optional.
	Tracer trace.Tracer
	// SanitizeMaxDepth bounds payload recursion. Defaults to
	// DefaultSanitizeDepth.
	SanitizeMaxDepth int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Pipeline is the single entry point of the audit subsystem: it
// sanitizes and enriches an event, appends it to the audit log, and
// hands the persisted entry to the dispatcher for asynchronous anomaly
// analysis.
type Pipeline struct {
	store      Store
	enricher   *Enricher
	geo        GeoResolver
	analyzer   Analyzer
	alerts     AlertSink
	dispatcher Dispatcher
	config     PipelineConfig
}

// NewPipeline wires the pipeline. Only store and enricher are required;
// geo, analyzer, alerts, and dispatcher may be nil for write-only
// deployments. It validates the action taxonomy so that a new action
// kind without category/risk mappings fails at startup.
func NewPipeline(
	store Store,
	enricher *Enricher,
	geo GeoResolver,
	analyzer Analyzer,
	alerts AlertSink,
	dispatcher Dispatcher,
	config PipelineConfig,
) (*Pipeline, error) {
	if err := ValidateTaxonomy(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("audit")
	}
	if config.SanitizeMaxDepth == 0 {
		config.SanitizeMaxDepth = DefaultSanitizeDepth
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Pipeline{
		store:      store,
		enricher:   enricher,
		geo:        geo,
		analyzer:   analyzer,
		alerts:     alerts,
		dispatcher: dispatcher,
		config:     config,
	}, nil
}

// Record processes one event: sanitize, enrich, geolocate, persist, and
// schedule async analysis. It never fails the caller: any internal
// failure is logged and nil is returned. Audit logging is best-effort
// relative to the business operation that triggered it.
func (p *Pipeline) Record(ctx context.Context, ev Event) *Entry {
	ctx, span := p.config.Tracer.Start(ctx, "audit.Record",
		trace.WithAttributes(attribute.String("audit.action", string(ev.Action))))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.config.Logger.Error("audit pipeline panic", "action", ev.Action, "panic", r)
		}
	}()

	entry := &Entry{
		ID:           uuid.New().String(),
		Action:       ev.Action,
		ActorID:      ev.ActorID,
		Resource:     ev.Resource,
		Success:      ev.Success,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
		Before:       SanitizeDepth(ev.Before, p.config.SanitizeMaxDepth),
		After:        SanitizeDepth(ev.After, p.config.SanitizeMaxDepth),
		Details:      SanitizeDepth(ev.Details, p.config.SanitizeMaxDepth),
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		Method:       ev.Method,
		Path:         ev.Path,
		DurationMS:   ev.DurationMS,
		RequestID:    ev.RequestID,
		SessionID:    ev.SessionID,
		CreatedAt:    p.config.Now().UTC(),
	}

	p.enricher.Enrich(ctx, entry, ev)

	if p.geo != nil {
		entry.Location = p.geo.Resolve(ctx, ev.IPAddress)
	}

	if err := p.store.CreateEntry(ctx, entry); err != nil {
		p.config.Logger.Error("failed to persist audit entry",
			"action", ev.Action,
			"actor_id", ev.ActorID,
			"error", err)
		if p.config.Metrics != nil {
			p.config.Metrics.IncEvent(ev.Action, ResultFailed)
		}
		return nil
	}
	if p.config.Metrics != nil {
		p.config.Metrics.IncEvent(ev.Action, ResultRecorded)
	}

	if p.dispatcher != nil && p.analyzer != nil {
		analyzed := copyEntry(entry)
		p.dispatcher.Submit(func(taskCtx context.Context) {
			p.analyzeEntry(taskCtx, analyzed)
		})
	}

	return entry
}

// analyzeEntry runs the detectors over one persisted entry and feeds the
// findings to the alert sink. Runs on the dispatcher, decoupled from the
// request path; failures are logged and isolated per finding.
func (p *Pipeline) analyzeEntry(ctx context.Context, entry *Entry) {
	ctx, span := p.config.Tracer.Start(ctx, "audit.Analyze",
		trace.WithAttributes(
			attribute.String("audit.action", string(entry.Action)),
			attribute.String("audit.entry_id", entry.ID)))
	defer span.End()

	_ = jobs.Track(p.config.Jobs, jobs.JobTypeAnomalyAnalysis, func() error {
		findings := p.analyzer.Analyze(ctx, entry)
		if len(findings) == 0 || p.alerts == nil {
			return nil
		}
		for _, f := range findings {
			if _, err := p.alerts.Upsert(ctx, f); err != nil {
				p.config.Logger.Error("failed to aggregate finding",
					"type", f.Type,
					"actor_email", f.ActorEmail,
					"error", err)
			}
		}
		return nil
	})
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/contextgate/contextgate/internal/core/domain"
)

// TransformFunc is the opaque transform invoked by the optional ai stage.
// It must return a non-nil payload; an error, a panic, or a nil payload is
// converted into an ai_error record.
type TransformFunc func(ctx context.Context, payload domain.Payload) (domain.Payload, error)

// Options are per-run configuration flags.
type Options struct {
	// EnableAI gates whether the transform stage is attempted.
	EnableAI bool
	// Strict makes rule-stage errors block the run. When false, rule errors
	// are discarded and the run continues.
	Strict bool
}

// DefaultOptions returns the default run configuration: transform disabled,
// strict mode on.
func DefaultOptions() Options {
	return Options{EnableAI: false, Strict: true}
}

// Observer receives the outcome of each completed run. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveRun(res *domain.Result, elapsed time.Duration)
}

// Runner orchestrates the four pipeline stages over fixed policy modules.
// A Runner is immutable after construction and safe for concurrent runs;
// each run operates on its own payload copy.
type Runner struct {
	schema     *Module
	rules      *Module
	guardrails *Module
	observer   Observer
	tracer     trace.Tracer
}

// Config wires a Runner. Any module may be nil; a missing collaborator
// passes its stage vacuously. Observer is optional.
type Config struct {
	Schema     *Module
	Rules      *Module
	Guardrails *Module
	Observer   Observer
}

// NewRunner creates a pipeline runner from configuration.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		schema:     cfg.Schema,
		rules:      cfg.Rules,
		guardrails: cfg.Guardrails,
		observer:   cfg.Observer,
		tracer:     otel.Tracer("contextgate/pipeline"),
	}
}

// Run executes the pipeline over a copy of request and returns the terminal
// Result. The caller's map is never mutated. transformFn may be nil; it is
// only consulted when opts.EnableAI is set. Panics from schema, rules, or
// guardrails functions propagate to the caller; only the transform call is
// wrapped in a failure boundary.
func (r *Runner) Run(ctx context.Context, request domain.Payload, transformFn TransformFunc, opts Options) domain.Result {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	res := domain.Result{
		Errors: []domain.ErrorRecord{},
		Trace:  []domain.TraceEntry{},
	}
	payload := request.Clone()

	// 1) Schema: always blocks on error.
	payload, blocked := r.runStage(ctx, &res, domain.StepSchema, r.schema, schemaCandidates, payload, domain.CodeSchemaError, true)
	if blocked {
		return r.finish(&res, span, start)
	}

	// 2) Rules: blocks only in strict mode. Non-blocking errors are
	// discarded, not merged into the final error list.
	payload, blocked = r.runStage(ctx, &res, domain.StepRules, r.rules, rulesCandidates, payload, domain.CodeRuleViolation, opts.Strict)
	if blocked {
		return r.finish(&res, span, start)
	}

	// 3) Guardrails: always blocks on error, strictness does not apply.
	payload, blocked = r.runStage(ctx, &res, domain.StepGuardrails, r.guardrails, guardrailsCandidates, payload, domain.CodeGuardrailBlock, true)
	if blocked {
		return r.finish(&res, span, start)
	}

	// 4) Optional transform.
	payload, blocked = r.runTransform(ctx, &res, payload, transformFn, opts)
	if blocked {
		return r.finish(&res, span, start)
	}

	res.OK = true
	res.Data = payload
	return r.finish(&res, span, start)
}

// runStage invokes one policy stage, threads the payload, appends the trace
// entry, and applies the blocking policy. It returns the current payload and
// whether the run terminated here. On a block it remaps each normalized
// error onto the stage's canonical code and records the final payload.
func (r *Runner) runStage(ctx context.Context, res *domain.Result, step string, mod *Module, candidates []string, payload domain.Payload, code string, blocking bool) (domain.Payload, bool) {
	_, span := r.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(attribute.String("stage", step)))
	defer span.End()

	inv := invoke(mod, candidates, payload)
	if inv.payload != nil {
		payload = inv.payload
	}

	ok := len(inv.errors) == 0
	res.Trace = append(res.Trace, domain.TraceEntry{Step: step, OK: ok, Info: inv.meta})
	span.SetAttributes(attribute.Bool("ok", ok))

	if ok || !blocking {
		return payload, false
	}

	for _, e := range inv.errors {
		res.Errors = append(res.Errors, domain.ErrorRecord{Code: code, Message: e.Message, Details: e.Details})
	}
	res.Data = payload
	return payload, true
}

// runTransform executes the optional ai stage. It is the only stage with a
// failure boundary: an error, a panic, or a nil payload from the transform
// becomes an ai_error and blocks the run.
func (r *Runner) runTransform(ctx context.Context, res *domain.Result, payload domain.Payload, transformFn TransformFunc, opts Options) (domain.Payload, bool) {
	if !opts.EnableAI || transformFn == nil {
		// Intentionally skipped optional stage, not a failure.
		res.Trace = append(res.Trace, domain.TraceEntry{Step: domain.StepAI, OK: true, Info: map[string]any{"called": false}})
		return payload, false
	}

	_, span := r.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(attribute.String("stage", domain.StepAI)))
	defer span.End()

	out, err := callTransform(ctx, transformFn, payload)
	if err == nil && out == nil {
		err = fmt.Errorf("transform returned no payload")
	}
	if err != nil {
		span.SetAttributes(attribute.Bool("ok", false))
		res.Trace = append(res.Trace, domain.TraceEntry{Step: domain.StepAI, OK: false, Info: map[string]any{"called": true}})
		res.Errors = append(res.Errors, domain.ErrorRecord{Code: domain.CodeAIError, Message: err.Error(), Details: map[string]any{}})
		res.Data = payload
		return payload, true
	}

	span.SetAttributes(attribute.Bool("ok", true))
	res.Trace = append(res.Trace, domain.TraceEntry{Step: domain.StepAI, OK: true, Info: map[string]any{"called": true}})
	// The transform's payload replaces the current one entirely, not merged.
	return out, false
}

func callTransform(ctx context.Context, fn TransformFunc, payload domain.Payload) (out domain.Payload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("transform panic: %v", rec)
		}
	}()
	return fn(ctx, payload)
}

func (r *Runner) finish(res *domain.Result, span trace.Span, start time.Time) domain.Result {
	span.SetAttributes(
		attribute.Bool("ok", res.OK),
		attribute.Int("stages", len(res.Trace)),
		attribute.Int("errors", len(res.Errors)),
	)
	if r.observer != nil {
		r.observer.ObserveRun(res, time.Since(start))
	}
	return *res
}

// Package domain defines the core data model shared across the pipeline:
// the request payload, canonical error records, per-stage trace entries,
// and the terminal result handed back to callers.
package domain

// Step names, in the fixed execution order of the pipeline.
const (
	StepSchema     = "schema"
	StepRules      = "rules"
	StepGuardrails = "guardrails"
	StepAI         = "ai"
)

// Canonical error codes. Every error surfaced to a caller carries one of
// these; stage-internal codes (missing_field, banned_content, ...) travel in
// ErrorRecord.Details or are remapped by the orchestrator.
const (
	CodeSchemaError    = "schema_error"
	CodeRuleViolation  = "rule_violation"
	CodeGuardrailBlock = "guardrail_block"
	CodeLayerError     = "layer_error"
	CodeAIError        = "ai_error"
)

// Payload is the open-ended request mapping threaded through the pipeline.
// Values are JSON-compatible: strings, numbers, bools, nil, []any and nested
// Payload/map[string]any.
type Payload map[string]any

// Clone returns a deep copy of the payload. Stages and the orchestrator
// operate on copies so the caller's map is never mutated.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		return Payload(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ErrorRecord is the canonical shape for every error in the system,
// regardless of which stage or internal representation produced it.
// Code and Message are always set; Details is always non-nil.
type ErrorRecord struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// TraceEntry records the outcome of one attempted stage. Entries appear in
// execution order; a blocked run's trace length tells you which stage blocked.
type TraceEntry struct {
	Step string         `json:"step"`
	OK   bool           `json:"ok"`
	Info map[string]any `json:"info"`
}

// Result is the terminal value of a pipeline run. OK is true iff Errors is
// empty and all four stages were attempted without blocking. Data holds the
// latest payload at the point of termination.
type Result struct {
	OK     bool          `json:"ok"`
	Data   Payload       `json:"data"`
	Errors []ErrorRecord `json:"errors"`
	Trace  []TraceEntry  `json:"trace"`
}

// Steps returns the ordered step names observed in the trace.
func (r *Result) Steps() []string {
	steps := make([]string, len(r.Trace))
	for i, t := range r.Trace {
		steps[i] = t.Step
	}
	return steps
}

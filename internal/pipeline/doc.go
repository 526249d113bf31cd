// Package pipeline provides the deterministic validation-and-policy
// pipeline engine.
//
// A run executes up to four stages in a fixed order, short-circuiting on the
// first blocking failure:
//   - schema: shape/type validation
//   - rules: role/action permission checks
//   - guardrails: content-safety scanning
//   - ai: an optional caller-supplied transform
//
// # Stage Contract
//
// Each of the first three stages is backed by a Module: a named set of
// entry-point functions. The engine probes a fixed, ordered list of
// candidate entry-point names per stage and invokes the first one present,
// exactly once. A module that exposes none of the candidate names passes
// vacuously.
//
// Stage functions return a StageResult: an updated payload, a list of
// errors, both, or a no-op. Legacy collaborators can register untyped
// functions returning any; their return values are interpreted under a
// permissive shape contract, with unrecognized shapes converted into
// layer_error records.
//
// # Blocking Policy
//
// Schema and guardrail errors always block. Rule errors block only in
// strict mode (the default); in non-strict mode they are discarded and the
// run continues. The transform stage is attempted only when enabled and
// supplied, and is the only stage wrapped in a failure boundary: a panic,
// error, or missing payload from the transform becomes an ai_error. Panics
// from schema/rules/guardrails functions propagate to the caller.
//
// Every run returns a Result carrying the final payload, canonical error
// records, and an ordered trace of the stages attempted.
package pipeline

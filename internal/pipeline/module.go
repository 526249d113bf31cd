package pipeline

import (
	"fmt"

	"github.com/contextgate/contextgate/internal/core/domain"
)

// Candidate entry-point names probed per stage, in order. The first name
// present on the module wins; later names are never tried, even if the
// resolved function fails.
var (
	schemaCandidates     = []string{"validate_request", "validate", "schema_validate"}
	rulesCandidates      = []string{"check_rules", "apply_rules", "evaluate_rules", "validate_rules"}
	guardrailsCandidates = []string{"check_guardrails", "enforce_guardrails", "guardrail_check"}
)

type resultKind int

const (
	kindNoOp resultKind = iota
	kindUpdated
	kindErrors
	kindBoth
)

// StageResult is the tagged return value of a stage function. Construct one
// with Updated, Fail, Mutated, or NoOp.
type StageResult struct {
	kind      resultKind
	payload   domain.Payload
	rawErrors []any
}

// Updated reports a successful stage that produced a replacement payload.
func Updated(p domain.Payload) StageResult {
	return StageResult{kind: kindUpdated, payload: p}
}

// Fail reports stage errors with no payload change. Elements may be strings
// or structured entries (map[string]any / domain.ErrorRecord); they are
// normalized before reaching the caller.
func Fail(errs ...any) StageResult {
	return StageResult{kind: kindErrors, rawErrors: errs}
}

// Mutated reports a replacement payload together with stage errors, the
// pair form. Policy stages use it to hand back a normalized payload even
// when they reject the request.
func Mutated(p domain.Payload, errs []any) StageResult {
	return StageResult{kind: kindBoth, payload: p, rawErrors: errs}
}

// NoOp reports that the stage has nothing to say: no payload change, no
// errors.
func NoOp() StageResult {
	return StageResult{kind: kindNoOp}
}

// Payload returns the replacement payload carried by the result, or nil
// when the stage left the payload unchanged.
func (r StageResult) Payload() domain.Payload {
	return r.payload
}

// RawErrors returns the unnormalized stage errors carried by the result.
func (r StageResult) RawErrors() []any {
	return r.rawErrors
}

// StageFunc is a stage entry point operating on the current payload. The
// payload must not be mutated in place; return a replacement instead.
type StageFunc func(domain.Payload) StageResult

// RawStageFunc is the untyped legacy form of a stage entry point. Its
// return value is interpreted, in priority order, as: a StageResult, an
// error list ([]any, []string, []domain.ErrorRecord), a replacement payload
// (domain.Payload / map[string]any), a no-op (nil), or an unexpected shape
// that becomes a layer_error.
type RawStageFunc func(domain.Payload) any

// Module is a policy collaborator: a named set of stage entry points. The
// zero value is not usable; create one with NewModule.
type Module struct {
	name string
	fns  map[string]StageFunc
}

// NewModule creates an empty collaborator with the given name. The name
// appears in synthesized layer_error messages and trace metadata.
func NewModule(name string) *Module {
	return &Module{name: name, fns: make(map[string]StageFunc)}
}

// Name returns the collaborator name.
func (m *Module) Name() string {
	return m.name
}

// Handle registers a typed stage function under an entry-point name.
// Registering the same name twice replaces the earlier function. Returns m
// for chaining.
func (m *Module) Handle(name string, fn StageFunc) *Module {
	m.fns[name] = fn
	return m
}

// HandleRaw registers an untyped stage function under an entry-point name.
// The return value is interpreted under the RawStageFunc shape contract at
// call time.
func (m *Module) HandleRaw(name string, fn RawStageFunc) *Module {
	m.fns[name] = func(p domain.Payload) StageResult {
		return interpretRaw(m.name, name, fn(p))
	}
	return m
}

// Lookup returns the stage function registered under name, if any. A nil
// module resolves nothing.
func (m *Module) Lookup(name string) (StageFunc, bool) {
	if m == nil {
		return nil, false
	}
	fn, ok := m.fns[name]
	return fn, ok
}

// interpretRaw maps an untyped stage return value onto the tagged result
// type, preserving the permissive shape contract.
func interpretRaw(moduleName, fnName string, out any) StageResult {
	switch v := out.(type) {
	case StageResult:
		return v
	case []any:
		return Fail(v...)
	case []string:
		errs := make([]any, len(v))
		for i, s := range v {
			errs[i] = s
		}
		return Fail(errs...)
	case []domain.ErrorRecord:
		errs := make([]any, len(v))
		for i, e := range v {
			errs[i] = e
		}
		return Fail(errs...)
	case domain.Payload:
		return Updated(v)
	case map[string]any:
		return Updated(domain.Payload(v))
	case nil:
		return NoOp()
	default:
		return Fail(fmt.Sprintf("unexpected return type from %s.%s: %T", moduleName, fnName, out))
	}
}

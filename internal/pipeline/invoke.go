package pipeline

import (
	"github.com/contextgate/contextgate/internal/core/domain"
)

// invocation is the outcome of probing a module for one stage. Meta always
// carries "called": the resolved entry-point name, or nil when no candidate
// matched.
type invocation struct {
	payload domain.Payload // nil means the stage left the payload unchanged
	errors  []domain.ErrorRecord
	meta    map[string]any
}

// invoke scans candidates in order and calls the first entry point present
// on the module, exactly once. Later candidates are never tried, even when
// the resolved function fails. A module exposing none of the candidates is
// a silent no-op: absence of a policy implementation means the stage passes
// vacuously. Panics from the resolved function are not recovered.
func invoke(mod *Module, candidates []string, payload domain.Payload) invocation {
	for _, name := range candidates {
		fn, ok := mod.Lookup(name)
		if !ok {
			continue
		}

		res := fn(payload)
		return invocation{
			payload: res.payload,
			errors:  normalizeErrors(res.rawErrors, domain.CodeLayerError, name),
			meta:    map[string]any{"called": name},
		}
	}

	return invocation{
		meta: map[string]any{"called": nil, "note": "no matching function found"},
	}
}

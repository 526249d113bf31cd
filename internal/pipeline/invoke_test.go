package pipeline

import (
	"strings"
	"testing"

	"github.com/contextgate/contextgate/internal/core/domain"
)

func TestInvoke_FirstCandidateWins(t *testing.T) {
	var called []string
	mod := NewModule("policy").
		Handle("validate", func(p domain.Payload) StageResult {
			called = append(called, "validate")
			return NoOp()
		}).
		Handle("validate_request", func(p domain.Payload) StageResult {
			called = append(called, "validate_request")
			return NoOp()
		})

	inv := invoke(mod, []string{"validate_request", "validate", "schema_validate"}, domain.Payload{})

	if len(called) != 1 || called[0] != "validate_request" {
		t.Errorf("expected only validate_request invoked, got %v", called)
	}
	if inv.meta["called"] != "validate_request" {
		t.Errorf("expected meta.called=validate_request, got %v", inv.meta["called"])
	}
}

func TestInvoke_NoFallbackAfterFailure(t *testing.T) {
	var secondCalled bool
	mod := NewModule("policy").
		Handle("check_rules", func(p domain.Payload) StageResult {
			return Fail("boom")
		}).
		Handle("apply_rules", func(p domain.Payload) StageResult {
			secondCalled = true
			return NoOp()
		})

	inv := invoke(mod, []string{"check_rules", "apply_rules"}, domain.Payload{})

	if secondCalled {
		t.Error("second candidate must never be tried after the first resolves")
	}
	if len(inv.errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(inv.errors))
	}
}

func TestInvoke_NoMatchIsVacuousPass(t *testing.T) {
	mod := NewModule("empty")

	inv := invoke(mod, []string{"check_guardrails", "enforce_guardrails"}, domain.Payload{"a": 1})

	if inv.payload != nil {
		t.Error("expected nil payload on no match")
	}
	if len(inv.errors) != 0 {
		t.Errorf("no match is not an error, got %v", inv.errors)
	}
	if inv.meta["called"] != nil {
		t.Errorf("expected called=nil, got %v", inv.meta["called"])
	}
	if inv.meta["note"] != "no matching function found" {
		t.Errorf("unexpected note %v", inv.meta["note"])
	}
}

func TestInvoke_NilModule(t *testing.T) {
	inv := invoke(nil, []string{"validate"}, domain.Payload{})

	if inv.meta["called"] != nil || len(inv.errors) != 0 {
		t.Errorf("nil module must pass vacuously: %+v", inv)
	}
}

func TestInvoke_PairResult(t *testing.T) {
	mod := NewModule("policy").Handle("validate_request", func(p domain.Payload) StageResult {
		return Mutated(domain.Payload{"action": "read"}, []any{"bad field"})
	})

	inv := invoke(mod, []string{"validate_request"}, domain.Payload{})

	if inv.payload == nil || inv.payload["action"] != "read" {
		t.Errorf("expected pair payload adopted, got %v", inv.payload)
	}
	if len(inv.errors) != 1 || inv.errors[0].Message != "bad field" {
		t.Errorf("expected pair errors normalized, got %v", inv.errors)
	}
}

func TestInvoke_RawErrorList(t *testing.T) {
	mod := NewModule("policy").HandleRaw("check_rules", func(p domain.Payload) any {
		return []any{"not allowed"}
	})

	inv := invoke(mod, []string{"check_rules"}, domain.Payload{})

	if inv.payload != nil {
		t.Error("error-list return must leave payload nil")
	}
	if len(inv.errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(inv.errors))
	}
	if inv.errors[0].Code != domain.CodeLayerError {
		t.Errorf("expected layer_error default code, got %q", inv.errors[0].Code)
	}
	if inv.errors[0].Details["step"] != "check_rules" {
		t.Errorf("expected resolved name as step, got %v", inv.errors[0].Details)
	}
}

func TestInvoke_RawPayload(t *testing.T) {
	mod := NewModule("policy").HandleRaw("validate", func(p domain.Payload) any {
		return map[string]any{"action": "read", "normalized": true}
	})

	inv := invoke(mod, []string{"validate"}, domain.Payload{})

	if inv.payload == nil || inv.payload["normalized"] != true {
		t.Errorf("expected map return adopted as payload, got %v", inv.payload)
	}
	if len(inv.errors) != 0 {
		t.Errorf("unexpected errors %v", inv.errors)
	}
}

func TestInvoke_RawNilIsNoOp(t *testing.T) {
	mod := NewModule("policy").HandleRaw("validate", func(p domain.Payload) any {
		return nil
	})

	inv := invoke(mod, []string{"validate"}, domain.Payload{})

	if inv.payload != nil || len(inv.errors) != 0 {
		t.Errorf("nil return must be a no-op: %+v", inv)
	}
	if inv.meta["called"] != "validate" {
		t.Errorf("no-op still records the resolved name, got %v", inv.meta["called"])
	}
}

func TestInvoke_RawUnexpectedShape(t *testing.T) {
	mod := NewModule("schemas").HandleRaw("validate", func(p domain.Payload) any {
		return 42
	})

	inv := invoke(mod, []string{"validate"}, domain.Payload{})

	if len(inv.errors) != 1 {
		t.Fatalf("expected 1 synthetic error, got %d", len(inv.errors))
	}
	e := inv.errors[0]
	if e.Code != domain.CodeLayerError {
		t.Errorf("expected layer_error, got %q", e.Code)
	}
	if !strings.Contains(e.Message, "schemas.validate") {
		t.Errorf("message must name the offending collaborator and function: %q", e.Message)
	}
	if !strings.Contains(e.Message, "int") {
		t.Errorf("message must name the unexpected type: %q", e.Message)
	}
}

func TestInvoke_RawStringSliceErrors(t *testing.T) {
	mod := NewModule("policy").HandleRaw("check_guardrails", func(p domain.Payload) any {
		return []string{"a", "b"}
	})

	inv := invoke(mod, []string{"check_guardrails"}, domain.Payload{})

	if len(inv.errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(inv.errors))
	}
	if inv.errors[0].Message != "a" || inv.errors[1].Message != "b" {
		t.Errorf("order not preserved: %v", inv.errors)
	}
}

package domain

import (
	"encoding/json"
	"testing"
)

func TestPayloadClone_DeepCopy(t *testing.T) {
	original := Payload{
		"action": "read",
		"nested": map[string]any{"key": "value"},
		"items":  []any{"a", "b"},
	}

	clone := original.Clone()

	clone["action"] = "write"
	clone["nested"].(Payload)["key"] = "changed"
	clone["items"].([]any)[0] = "z"

	if original["action"] != "read" {
		t.Errorf("clone mutated original scalar: %v", original["action"])
	}
	if original["nested"].(map[string]any)["key"] != "value" {
		t.Error("clone mutated original nested map")
	}
	if original["items"].([]any)[0] != "a" {
		t.Error("clone mutated original list")
	}
}

func TestPayloadClone_Nil(t *testing.T) {
	var p Payload
	if p.Clone() != nil {
		t.Error("expected nil clone of nil payload")
	}
}

func TestResultJSON_RoundTrip(t *testing.T) {
	res := Result{
		OK:   false,
		Data: Payload{"action": "read"},
		Errors: []ErrorRecord{
			{Code: CodeGuardrailBlock, Message: "blocked", Details: map[string]any{"matched": "bomb"}},
		},
		Trace: []TraceEntry{
			{Step: StepSchema, OK: true, Info: map[string]any{"called": "validate_request"}},
			{Step: StepRules, OK: true, Info: map[string]any{"called": "check_rules"}},
			{Step: StepGuardrails, OK: false, Info: map[string]any{"called": "check_guardrails"}},
		},
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.OK {
		t.Error("expected ok=false after round trip")
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0].Code != CodeGuardrailBlock {
		t.Errorf("errors not preserved: %+v", decoded.Errors)
	}
	steps := decoded.Steps()
	want := []string{StepSchema, StepRules, StepGuardrails}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d: expected %q, got %q", i, want[i], steps[i])
		}
	}
}

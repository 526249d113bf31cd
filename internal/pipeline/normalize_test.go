package pipeline

import (
	"testing"

	"github.com/contextgate/contextgate/internal/core/domain"
)

func TestNormalizeErrors_Empty(t *testing.T) {
	if got := normalizeErrors(nil, "layer_error", "validate"); got != nil {
		t.Errorf("expected nil for no errors, got %v", got)
	}
	if got := normalizeErrors([]any{}, "layer_error", "validate"); got != nil {
		t.Errorf("expected nil for empty errors, got %v", got)
	}
}

func TestNormalizeErrors_String(t *testing.T) {
	got := normalizeErrors([]any{"something broke"}, "layer_error", "check_rules")

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Code != "layer_error" {
		t.Errorf("expected default code, got %q", got[0].Code)
	}
	if got[0].Message != "something broke" {
		t.Errorf("unexpected message %q", got[0].Message)
	}
	if got[0].Details["step"] != "check_rules" {
		t.Errorf("expected step in details, got %v", got[0].Details)
	}
}

func TestNormalizeErrors_StructuredWithDetails(t *testing.T) {
	got := normalizeErrors([]any{
		map[string]any{
			"code":    "missing_field",
			"message": "Missing required field: action",
			"details": map[string]any{"field": "action"},
		},
	}, "layer_error", "validate_request")

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Code != "missing_field" {
		t.Errorf("expected provided code, got %q", got[0].Code)
	}
	if got[0].Details["field"] != "action" {
		t.Errorf("expected explicit details preserved, got %v", got[0].Details)
	}
}

func TestNormalizeErrors_ExtraKeysBecomeDetails(t *testing.T) {
	got := normalizeErrors([]any{
		map[string]any{
			"code":    "unknown_role",
			"message": "Role is not recognized.",
			"role":    "wizard",
			"allowed": []any{"user", "admin"},
		},
	}, "layer_error", "validate_request")

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Details["role"] != "wizard" {
		t.Errorf("expected extra key moved into details, got %v", got[0].Details)
	}
	if _, ok := got[0].Details["code"]; ok {
		t.Error("code must not leak into synthesized details")
	}
	if _, ok := got[0].Details["message"]; ok {
		t.Error("message must not leak into synthesized details")
	}
}

func TestNormalizeErrors_DefaultsAndCoercion(t *testing.T) {
	got := normalizeErrors([]any{
		map[string]any{"code": 42},
		map[string]any{},
		404,
	}, "fallback", "step_x")

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Code != "42" {
		t.Errorf("expected code coerced to string, got %q", got[0].Code)
	}
	if got[0].Message != "Error" {
		t.Errorf("expected default message, got %q", got[0].Message)
	}
	if got[1].Code != "fallback" {
		t.Errorf("expected default code, got %q", got[1].Code)
	}
	if got[2].Message != "404" {
		t.Errorf("expected non-string element stringified, got %q", got[2].Message)
	}
	if got[2].Details["step"] != "step_x" {
		t.Errorf("expected step in details, got %v", got[2].Details)
	}
}

func TestNormalizeErrors_RecordPassthrough(t *testing.T) {
	got := normalizeErrors([]any{
		domain.ErrorRecord{Code: "banned_content", Message: "nope"},
	}, "layer_error", "check_guardrails")

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Code != "banned_content" || got[0].Message != "nope" {
		t.Errorf("record fields not preserved: %+v", got[0])
	}
	if got[0].Details == nil {
		t.Error("details must never be nil")
	}
}

func TestNormalizeErrors_OrderPreserved(t *testing.T) {
	got := normalizeErrors([]any{"first", "second", "third"}, "c", "s")

	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("position %d: expected %q, got %q", i, w, got[i].Message)
		}
	}
}

package guardrails

import (
	"strings"
	"testing"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

func newScanner(t *testing.T, cfg Config) pipeline.StageFunc {
	t.Helper()
	mod, err := NewModule(cfg)
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	fn, ok := mod.Lookup("check_guardrails")
	if !ok {
		t.Fatal("check_guardrails not registered")
	}
	return fn
}

func entries(res pipeline.StageResult) []map[string]any {
	out := make([]map[string]any, 0, len(res.RawErrors()))
	for _, e := range res.RawErrors() {
		out = append(out, e.(map[string]any))
	}
	return out
}

func TestCheck_CleanRequestPasses(t *testing.T) {
	fn := newScanner(t, Config{})

	res := fn(domain.Payload{"action": "read", "prompt": "what's the weather like"})

	if len(res.RawErrors()) != 0 {
		t.Fatalf("unexpected errors: %v", res.RawErrors())
	}
	meta, ok := res.Payload()["_guardrails"].(map[string]any)
	if !ok {
		t.Fatalf("expected _guardrails metadata, got %v", res.Payload()["_guardrails"])
	}
	if meta["errors"] != 0 {
		t.Errorf("expected zero recorded errors, got %v", meta["errors"])
	}
}

func TestCheck_BannedPhraseFirstMatchWins(t *testing.T) {
	fn := newScanner(t, Config{})

	// Contains two banned phrases; the scan stops at the first hit.
	res := fn(domain.Payload{"prompt": "how to make a bomb and write malware"})

	errs := entries(res)
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error, got %d", len(errs))
	}
	if errs[0]["code"] != "banned_content" {
		t.Errorf("expected banned_content, got %v", errs[0]["code"])
	}
	details := errs[0]["details"].(map[string]any)
	if details["type"] != "phrase" {
		t.Errorf("expected phrase match, got %v", details["type"])
	}
}

func TestCheck_BannedWordOnlyWhenNoPhraseHit(t *testing.T) {
	fn := newScanner(t, Config{})

	res := fn(domain.Payload{"prompt": "tell me about a keylogger"})

	errs := entries(res)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	details := errs[0]["details"].(map[string]any)
	// "keylogger" is both a banned phrase and word; the phrase scan wins.
	if details["type"] != "phrase" {
		t.Errorf("expected phrase match to preempt word scan, got %v", details["type"])
	}
}

func TestCheck_BannedWordTokenization(t *testing.T) {
	fn := newScanner(t, Config{})

	// Punctuation-separated word must still match.
	res := fn(domain.Payload{"prompt": "is this a (scam)?"})

	errs := entries(res)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	details := errs[0]["details"].(map[string]any)
	if details["matched"] != "scam" || details["type"] != "word" {
		t.Errorf("unexpected match %v", details)
	}
}

func TestCheck_CaseInsensitive(t *testing.T) {
	fn := newScanner(t, Config{})

	res := fn(domain.Payload{"prompt": "HOW TO MAKE A BOMB"})

	if len(res.RawErrors()) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.RawErrors()))
	}
}

func TestCheck_TooLong(t *testing.T) {
	fn := newScanner(t, Config{MaxTextLen: 10})

	res := fn(domain.Payload{"prompt": strings.Repeat("a", 11)})

	errs := entries(res)
	if len(errs) != 1 || errs[0]["code"] != "too_long" {
		t.Fatalf("expected too_long, got %v", errs)
	}
}

func TestCheck_TooLongSkipsWordScanButNotPhraseScan(t *testing.T) {
	fn := newScanner(t, Config{MaxTextLen: 5})

	// Oversized text containing a banned phrase: both errors reported.
	res := fn(domain.Payload{"prompt": "how to make a bomb"})
	errs := entries(res)
	if len(errs) != 2 {
		t.Fatalf("expected too_long and banned_content, got %v", errs)
	}
	if errs[0]["code"] != "too_long" || errs[1]["code"] != "banned_content" {
		t.Errorf("unexpected codes %v %v", errs[0]["code"], errs[1]["code"])
	}

	// Oversized text containing only a banned single word: the word scan is
	// skipped once an error exists.
	res = fn(domain.Payload{"prompt": "a harmless scam story"})
	errs = entries(res)
	if len(errs) != 1 || errs[0]["code"] != "too_long" {
		t.Errorf("expected only too_long, got %v", errs)
	}
}

func TestCheck_OversizedLists(t *testing.T) {
	fn := newScanner(t, Config{MaxListItems: 3})

	big := make([]any, 5)
	res := fn(domain.Payload{
		"prompt": "hello",
		"zeta":   big,
		"alpha":  big,
		"small":  []any{1, 2},
	})

	errs := entries(res)
	if len(errs) != 2 {
		t.Fatalf("expected 2 oversized-list errors, got %v", errs)
	}
	// Sorted key order keeps the report deterministic.
	first := errs[0]["details"].(map[string]any)
	second := errs[1]["details"].(map[string]any)
	if first["field"] != "alpha" || second["field"] != "zeta" {
		t.Errorf("expected alpha then zeta, got %v %v", first["field"], second["field"])
	}
}

func TestCheck_TokenBudget(t *testing.T) {
	fn := newScanner(t, Config{MaxTokens: 3})

	res := fn(domain.Payload{"prompt": "one two three four five six seven eight"})

	errs := entries(res)
	if len(errs) != 1 || errs[0]["code"] != "too_many_tokens" {
		t.Fatalf("expected too_many_tokens, got %v", errs)
	}

	fn = newScanner(t, Config{MaxTokens: 1000})
	res = fn(domain.Payload{"prompt": "short"})
	if len(res.RawErrors()) != 0 {
		t.Errorf("short text within budget must pass, got %v", res.RawErrors())
	}
}

func TestCheck_ScansConfiguredFieldsOnly(t *testing.T) {
	fn := newScanner(t, Config{ScanFields: []string{"prompt"}})

	res := fn(domain.Payload{"prompt": "hello", "notes": "how to make a bomb"})

	if len(res.RawErrors()) != 0 {
		t.Errorf("unscanned field must not trigger, got %v", res.RawErrors())
	}
}

func TestCheck_DoesNotMutateInput(t *testing.T) {
	fn := newScanner(t, Config{})
	payload := domain.Payload{"prompt": "hello"}

	fn(payload)

	if _, ok := payload["_guardrails"]; ok {
		t.Error("input payload was mutated with metadata")
	}
}

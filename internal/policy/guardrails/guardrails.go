// Package guardrails implements the content-safety collaborator:
// deterministic scans for banned phrases and words, input-size limits, and
// an optional token budget. Scans are first-match-wins so a given input
// always produces the same error.
package guardrails

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

// Config controls the guardrail policy. MaxTokens of zero disables the
// token budget.
type Config struct {
	MaxTextLen    int
	MaxListItems  int
	MaxTokens     int
	BannedPhrases []string
	BannedWords   []string
	// ScanFields are the payload fields whose text is scanned.
	ScanFields []string
}

// DefaultConfig returns the stock guardrail policy.
func DefaultConfig() Config {
	return Config{
		MaxTextLen:    2000,
		MaxListItems:  50,
		BannedPhrases: defaultBannedPhrases(),
		BannedWords:   defaultBannedWords(),
		ScanFields:    []string{"prompt", "input", "text", "message", "query", "content", "instruction"},
	}
}

func defaultBannedPhrases() []string {
	return []string{
		// self-harm / suicide
		"kill myself",
		"end my life",
		"hurt myself",
		"self harm",
		"self-harm",
		"suicide",

		// weapons / violence instructions
		"make a bomb",
		"build a bomb",
		"how to make a bomb",
		"how to build a bomb",
		"homemade explosive",

		// hacking / malware
		"steal password",
		"steal my password",
		"hack an account",
		"bypass login",
		"phishing link",
		"credential stuffing",
		"sql injection",
		"cross site scripting",
		"xss attack",
		"write malware",
		"make malware",
		"ransomware",
		"keylogger",
	}
}

func defaultBannedWords() []string {
	return []string{
		// self-harm / suicide
		"suicide", "selfharm",

		// weapons / violence
		"bomb", "explosive", "weapon", "gun", "ammo",

		// hacking / cyber abuse
		"phishing", "keylogger", "malware", "ransomware", "ddos", "botnet", "backdoor",
		"hack", "hacking", "crack", "cracker",

		// fraud / abuse
		"scam", "fraud",
	}
}

type scanner struct {
	cfg         Config
	bannedWords map[string]struct{}
	codec       tokenizer.Codec
}

// NewModule builds the guardrail collaborator, registered under its
// recognized entry-point aliases. The token codec is resolved eagerly so a
// broken tokenizer surfaces at startup, not mid-run.
func NewModule(cfg Config) (*pipeline.Module, error) {
	cfg = withDefaults(cfg)

	s := &scanner{cfg: cfg, bannedWords: make(map[string]struct{}, len(cfg.BannedWords))}
	for _, w := range cfg.BannedWords {
		s.bannedWords[w] = struct{}{}
	}

	if cfg.MaxTokens > 0 {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load token codec: %w", err)
		}
		s.codec = codec
	}

	mod := pipeline.NewModule("guardrails")
	for _, name := range []string{"check_guardrails", "enforce_guardrails"} {
		mod.Handle(name, s.check)
	}
	return mod, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxTextLen == 0 {
		cfg.MaxTextLen = def.MaxTextLen
	}
	if cfg.MaxListItems == 0 {
		cfg.MaxListItems = def.MaxListItems
	}
	if cfg.BannedPhrases == nil {
		cfg.BannedPhrases = def.BannedPhrases
	}
	if cfg.BannedWords == nil {
		cfg.BannedWords = def.BannedWords
	}
	if cfg.ScanFields == nil {
		cfg.ScanFields = def.ScanFields
	}
	return cfg
}

func (s *scanner) check(payload domain.Payload) pipeline.StageResult {
	var errs []any
	combined := strings.ToLower(s.collectText(payload))

	// 1) Length limit.
	if len(combined) > s.cfg.MaxTextLen {
		errs = append(errs, errEntry(
			"too_long",
			fmt.Sprintf("Input text is too long (max %d chars).", s.cfg.MaxTextLen),
			map[string]any{"length": len(combined), "max_len": s.cfg.MaxTextLen},
		))
	}

	// 2) Token budget, when configured.
	if s.codec != nil {
		ids, _, err := s.codec.Encode(combined)
		if err == nil && len(ids) > s.cfg.MaxTokens {
			errs = append(errs, errEntry(
				"too_many_tokens",
				fmt.Sprintf("Input text exceeds the token budget (max %d tokens).", s.cfg.MaxTokens),
				map[string]any{"tokens": len(ids), "max_tokens": s.cfg.MaxTokens},
			))
		}
	}

	// 3a) Banned phrases: stop at the first match.
	for _, phrase := range s.cfg.BannedPhrases {
		if strings.Contains(combined, phrase) {
			errs = append(errs, errEntry(
				"banned_content",
				"Request appears to include disallowed/unsafe content.",
				map[string]any{"matched": phrase, "type": "phrase"},
			))
			break
		}
	}

	// 3b) Banned single words, only when nothing has matched yet.
	if len(errs) == 0 {
		for _, w := range tokenize(combined) {
			if _, hit := s.bannedWords[w]; hit {
				errs = append(errs, errEntry(
					"banned_content",
					"Request appears to include disallowed/unsafe content.",
					map[string]any{"matched": w, "type": "word"},
				))
				break
			}
		}
	}

	// 4) Oversized list fields. Keys are visited in sorted order so error
	// order is stable across runs.
	for _, key := range sortedKeys(payload) {
		if list, ok := payload[key].([]any); ok && len(list) > s.cfg.MaxListItems {
			errs = append(errs, errEntry(
				"too_many_items",
				fmt.Sprintf("Field '%s' has too many items (max %d).", key, s.cfg.MaxListItems),
				map[string]any{"field": key, "count": len(list), "max_items": s.cfg.MaxListItems},
			))
		}
	}

	guarded := payload.Clone()
	guarded["_guardrails"] = map[string]any{
		"scanned_chars": len(combined),
		"errors":        len(errs),
	}

	return pipeline.Mutated(guarded, errs)
}

// collectText gathers the scannable text fields into one newline-joined
// blob. Non-string values are stringified rather than skipped.
func (s *scanner) collectText(payload domain.Payload) string {
	var parts []string
	for _, f := range s.cfg.ScanFields {
		if v, ok := payload[f]; ok && v != nil {
			parts = append(parts, stringify(v))
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

var punctReplacer = strings.NewReplacer(
	".", " ", ",", " ", "!", " ", "?", " ", ":", " ", ";", " ",
	"(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ",
	`"`, " ", "'", " ", "/", " ", `\`, " ", "-", " ", "_", " ",
)

// tokenize lowercases, strips common punctuation, and splits on whitespace.
func tokenize(text string) []string {
	return strings.Fields(punctReplacer.Replace(strings.ToLower(text)))
}

func sortedKeys(p domain.Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func errEntry(code, message string, details map[string]any) map[string]any {
	return map[string]any{"code": code, "message": message, "details": details}
}

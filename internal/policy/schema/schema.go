// Package schema implements the shape-validation collaborator: required
// fields, basic types, and small normalizations (trimming, lowercasing).
// Permission decisions belong to the rules package and safety scanning to
// the guardrails package.
package schema

import (
	"fmt"
	"strings"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

// Config controls the schema policy. Zero-value slices fall back to the
// defaults from DefaultConfig.
type Config struct {
	RequiredFields []string
	AllowedRoles   []string
	AllowedActions []string
	// TextFields are optional free-text fields whose surrounding whitespace
	// is trimmed when present.
	TextFields []string
}

// DefaultConfig returns the stock schema policy.
func DefaultConfig() Config {
	return Config{
		RequiredFields: []string{"action"},
		AllowedRoles:   []string{"user", "admin", "system"},
		AllowedActions: []string{"read", "ask", "summarize", "write", "delete", "export"},
		TextFields:     []string{"resource", "prompt", "input", "text", "message", "query", "content", "instruction"},
	}
}

type validator struct {
	cfg Config
}

// NewModule builds the schema collaborator. The validator is registered
// under every recognized entry-point name so legacy callers resolve it
// regardless of which alias they probe.
func NewModule(cfg Config) *pipeline.Module {
	v := &validator{cfg: withDefaults(cfg)}
	mod := pipeline.NewModule("schema")
	for _, name := range []string{"validate_request", "validate", "schema_validate"} {
		mod.Handle(name, v.validate)
	}
	return mod
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.RequiredFields == nil {
		cfg.RequiredFields = def.RequiredFields
	}
	if cfg.AllowedRoles == nil {
		cfg.AllowedRoles = def.AllowedRoles
	}
	if cfg.AllowedActions == nil {
		cfg.AllowedActions = def.AllowedActions
	}
	if cfg.TextFields == nil {
		cfg.TextFields = def.TextFields
	}
	return cfg
}

func (v *validator) validate(payload domain.Payload) pipeline.StageResult {
	var errs []any
	normalized := payload.Clone()

	for _, field := range v.cfg.RequiredFields {
		if _, ok := normalized[field]; !ok {
			errs = append(errs, errEntry(
				"missing_field",
				fmt.Sprintf("Missing required field: %s", field),
				map[string]any{"field": field, "required_fields": v.cfg.RequiredFields},
			))
		}
	}
	if len(errs) > 0 {
		// Nothing else to check without the required fields.
		return pipeline.Mutated(normalized, errs)
	}

	action, ok := nonEmptyString(normalized["action"])
	if !ok {
		errs = append(errs, errEntry(
			"invalid_action_type",
			"Field 'action' must be a non-empty string.",
			map[string]any{"action": normalized["action"]},
		))
	} else {
		action = strings.ToLower(strings.TrimSpace(action))
		normalized["action"] = action
		if !contains(v.cfg.AllowedActions, action) {
			errs = append(errs, errEntry(
				"unknown_action",
				"Action is not recognized.",
				map[string]any{"action": action, "allowed_actions": v.cfg.AllowedActions},
			))
		}
	}

	// Role is optional; schema checks it exists, rules decides what it may do.
	if raw, present := normalized["role"]; present && raw != nil {
		role, ok := nonEmptyString(raw)
		if !ok {
			errs = append(errs, errEntry(
				"invalid_role_type",
				"Field 'role' must be a non-empty string if provided.",
				map[string]any{"role": raw},
			))
		} else {
			role = strings.ToLower(strings.TrimSpace(role))
			normalized["role"] = role
			if !contains(v.cfg.AllowedRoles, role) {
				errs = append(errs, errEntry(
					"unknown_role",
					"Role is not recognized.",
					map[string]any{"role": role, "allowed_roles": v.cfg.AllowedRoles},
				))
			}
		}
	}

	for _, field := range v.cfg.TextFields {
		if s, ok := normalized[field].(string); ok {
			normalized[field] = strings.TrimSpace(s)
		}
	}

	normalized["_schema"] = map[string]any{
		"validated":       true,
		"required_fields": v.cfg.RequiredFields,
	}

	return pipeline.Mutated(normalized, errs)
}

func errEntry(code, message string, details map[string]any) map[string]any {
	return map[string]any{"code": code, "message": message, "details": details}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Package rules implements the permission collaborator: role/action
// allow-lists and a handful of resource rules. Safety keywords are the
// guardrails package's concern.
package rules

import (
	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

// DefaultRole is assumed when the request carries no role.
const DefaultRole = "user"

// Config controls the rules policy.
type Config struct {
	AllowedRoles []string
	// RoleActions maps each role to the actions it may perform.
	RoleActions map[string][]string
}

// DefaultConfig returns the stock permission table.
func DefaultConfig() Config {
	return Config{
		AllowedRoles: []string{"user", "admin", "system"},
		RoleActions: map[string][]string{
			"user":   {"read", "ask", "summarize"},
			"admin":  {"read", "ask", "summarize", "write", "delete"},
			"system": {"read", "ask", "summarize"},
		},
	}
}

type checker struct {
	cfg Config
}

// NewModule builds the rules collaborator, registered under its recognized
// entry-point aliases.
func NewModule(cfg Config) *pipeline.Module {
	c := &checker{cfg: withDefaults(cfg)}
	mod := pipeline.NewModule("rules")
	for _, name := range []string{"check_rules", "apply_rules"} {
		mod.Handle(name, c.check)
	}
	return mod
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.AllowedRoles == nil {
		cfg.AllowedRoles = def.AllowedRoles
	}
	if cfg.RoleActions == nil {
		cfg.RoleActions = def.RoleActions
	}
	return cfg
}

// check evaluates the permission rules in a fixed order and stops at the
// first violation.
func (c *checker) check(payload domain.Payload) pipeline.StageResult {
	role, roleSet := stringField(payload, "role")
	action, actionSet := stringField(payload, "action")
	resource, _ := stringField(payload, "resource")

	// Unknown role.
	if roleSet && !contains(c.cfg.AllowedRoles, role) {
		return pipeline.Fail(errEntry(
			"invalid_role",
			"Role is not allowed.",
			map[string]any{"role": payload["role"], "allowed_roles": c.cfg.AllowedRoles},
		))
	}
	if !roleSet {
		role = DefaultRole
	}

	// Rules cannot decide without an action.
	if !actionSet {
		return pipeline.Fail(errEntry(
			"missing_action",
			"Missing required field: action",
			map[string]any{"required": []string{"action"}, "example": "read"},
		))
	}

	allowed := c.cfg.RoleActions[role]
	if !contains(allowed, action) {
		return pipeline.Fail(errEntry(
			"action_not_allowed",
			"Action is not allowed for this role.",
			map[string]any{"role": role, "action": action, "allowed_actions": allowed},
		))
	}

	// Only admin may delete, whatever the table says.
	if action == "delete" && role != "admin" {
		return pipeline.Fail(errEntry(
			"delete_requires_admin",
			"Only admin can perform delete actions.",
			map[string]any{"role": role, "action": action},
		))
	}

	// Users cannot write to protected resources.
	if action == "write" && role == "user" && resource == "system_config" {
		return pipeline.Fail(errEntry(
			"protected_resource",
			"Users cannot write to protected resources.",
			map[string]any{"role": role, "action": action, "resource": resource},
		))
	}

	normalized := payload.Clone()
	normalized["role"] = role // apply the default consistently
	normalized["_rules"] = map[string]any{"checked": true, "role": role, "action": action}

	return pipeline.Updated(normalized)
}

// stringField reads a payload field as a string. A present non-string,
// non-nil value counts as set with an unmatchable value, so allow-list
// checks reject it.
func stringField(p domain.Payload, key string) (string, bool) {
	v, present := p[key]
	if !present || v == nil {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func errEntry(code, message string, details map[string]any) map[string]any {
	return map[string]any{"code": code, "message": message, "details": details}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

package pipeline

import (
	"fmt"

	"github.com/contextgate/contextgate/internal/core/domain"
)

// normalizeErrors converts heterogeneous stage errors into canonical
// ErrorRecords. Structured entries keep their own code/message; plain
// strings get defaultCode and a details map naming the step. Output order
// matches input order, no deduplication.
func normalizeErrors(raw []any, defaultCode, stepName string) []domain.ErrorRecord {
	if len(raw) == 0 {
		return nil
	}

	normalized := make([]domain.ErrorRecord, 0, len(raw))
	for _, e := range raw {
		switch v := e.(type) {
		case domain.ErrorRecord:
			normalized = append(normalized, normalizeRecord(v, defaultCode))
		case map[string]any:
			normalized = append(normalized, normalizeEntry(v, defaultCode))
		case domain.Payload:
			normalized = append(normalized, normalizeEntry(v, defaultCode))
		default:
			normalized = append(normalized, domain.ErrorRecord{
				Code:    defaultCode,
				Message: stringify(v),
				Details: map[string]any{"step": stepName},
			})
		}
	}
	return normalized
}

func normalizeRecord(e domain.ErrorRecord, defaultCode string) domain.ErrorRecord {
	if e.Code == "" {
		e.Code = defaultCode
	}
	if e.Message == "" {
		e.Message = "Error"
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	return e
}

func normalizeEntry(e map[string]any, defaultCode string) domain.ErrorRecord {
	code := defaultCode
	if c, ok := e["code"]; ok {
		code = stringify(c)
	}
	message := "Error"
	if m, ok := e["message"]; ok {
		message = stringify(m)
	}

	var details map[string]any
	if d, ok := e["details"]; ok {
		details, _ = d.(map[string]any)
		if details == nil {
			details = map[string]any{}
		}
	} else {
		// No explicit details: move every other key into details.
		details = map[string]any{}
		for k, v := range e {
			if k != "code" && k != "message" {
				details[k] = v
			}
		}
	}

	return domain.ErrorRecord{Code: code, Message: message, Details: details}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Package transform provides implementations of the pipeline's optional
// transform stage: an opaque function the orchestrator calls with the
// vetted payload once every policy stage has passed.
package transform

import (
	"context"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

// Echo returns a transform that answers the prompt back. Used by the demo
// configuration and as a stand-in when no real model backend is wired.
func Echo() pipeline.TransformFunc {
	return func(ctx context.Context, payload domain.Payload) (domain.Payload, error) {
		out := payload.Clone()
		prompt, _ := payload["prompt"].(string)
		out["assistant_reply"] = "You said: " + prompt
		return out, nil
	}
}

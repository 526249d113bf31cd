// Package storage persists pipeline runs for audit and debugging.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/contextgate/contextgate/internal/core/domain"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord is one stored pipeline run: the request as received and the
// full result, with the terminating stage denormalized for querying.
type RunRecord struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	OK        bool           `json:"ok"`
	BlockedAt string         `json:"blocked_at,omitempty"`
	Request   domain.Payload `json:"request"`
	Result    domain.Result  `json:"result"`
}

// NewRunRecord builds a record from a finished run. BlockedAt is the last
// attempted stage when the run did not succeed.
func NewRunRecord(id string, request domain.Payload, res domain.Result) *RunRecord {
	rec := &RunRecord{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		OK:        res.OK,
		Request:   request,
		Result:    res,
	}
	if !res.OK && len(res.Trace) > 0 {
		rec.BlockedAt = res.Trace[len(res.Trace)-1].Step
	}
	return rec
}

// RunStore stores and retrieves pipeline runs.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	// DeleteRunsBefore removes runs created before cutoff and reports how
	// many were deleted.
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

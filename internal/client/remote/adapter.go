// Package remote talks to the hosted backend that holds the authoritative
// copy of every expense record.
//
// All writes are idempotent: replaying a create that already landed, an
// update of a row that vanished or a delete of a row that is already gone
// is reported as a success-equivalent outcome, never as an error, so the
// sync queue can be replayed safely after partial failures.
package remote

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
)

// ErrForeignRecord is reported when an update targets an id that exists on
// the remote under a different owner.
var ErrForeignRecord = errors.New("record id belongs to another owner")

// Outcome classifies a remote write.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeApplied
	// OutcomeAlreadyApplied means the remote already reflects the write.
	OutcomeAlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	default:
		return "failed"
	}
}

// Result of a single remote write. Err is set only for OutcomeFailed.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports a success or success-equivalent outcome.
func (r Result) OK() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeAlreadyApplied
}

func applied() Result        { return Result{Outcome: OutcomeApplied} }
func alreadyApplied() Result { return Result{Outcome: OutcomeAlreadyApplied} }
func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

// Adapter is the remote record API consumed by the sync engine.
type Adapter interface {
	Create(ctx context.Context, rec models.ExpenseRecord) Result
	Update(ctx context.Context, rec models.ExpenseRecord) Result
	Delete(ctx context.Context, id, ownerID string) Result
	PullAll(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error)
	Ping(ctx context.Context) error
}

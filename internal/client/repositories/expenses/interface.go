package expenses

import (
	"context"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
)

// Repository describes row-level operations on expense records.
type Repository interface {
	// Insert stores a new record. The id must not exist yet.
	Insert(ctx context.Context, rec *models.ExpenseRecord) error

	// Update overwrites the mutable columns of an existing record.
	// Returns common.ErrNotFound when the id is unknown.
	Update(ctx context.Context, rec *models.ExpenseRecord) error

	// Upsert inserts the record or replaces every column of an existing one.
	Upsert(ctx context.Context, rec *models.ExpenseRecord) error

	// GetByID returns common.ErrNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.ExpenseRecord, error)

	// ListByOwner returns records ordered by occurred_at, then created_at, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error)

	// DeleteByID removes the row. Returns common.ErrNotFound when the id is unknown.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByOwner removes every record of the owner and returns how many went.
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)

	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkSyncFailed(ctx context.Context, id string, message string) error

	// CountByState counts the owner's records in the given sync state.
	CountByState(ctx context.Context, ownerID string, state models.SyncState) (int, error)
}

// Package queue persists the outbound sync queue: an ordered,
// deduplicated log of mutations still to be replayed against the remote store.
package queue

import (
	"context"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
)

// Repository describes row-level operations on queue entries.
type Repository interface {
	// Enqueue appends the entry unless one already exists for the same
	// (record_id, operation); reports whether a row was added.
	Enqueue(ctx context.Context, e *models.SyncQueueEntry) (bool, error)

	// Drain lists the owner's entries with retry_count below ceiling in
	// sequence order.
	Drain(ctx context.Context, ownerID string, ceiling int) ([]models.SyncQueueEntry, error)

	// Stuck lists the owner's entries at or over the ceiling.
	Stuck(ctx context.Context, ownerID string, ceiling int) ([]models.SyncQueueEntry, error)

	Remove(ctx context.Context, sequenceID int64) error
	IncrementRetry(ctx context.Context, sequenceID int64, message string) error

	// ForRecord lists every entry referencing the record.
	ForRecord(ctx context.Context, recordID string) ([]models.SyncQueueEntry, error)

	PurgeStuck(ctx context.Context, ownerID string, ceiling int) (int64, error)
	ResetStuck(ctx context.Context, ownerID string, ceiling int) (int64, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
	Count(ctx context.Context, ownerID string) (int, error)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/expenses"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/dbx"
)

// Drain returns the owner's entries still under the retry ceiling, oldest first.
func (s *LocalStore) Drain(ctx context.Context, ownerID string) ([]models.SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := queue.NewSQLiteRepository(s.db).Drain(ctx, ownerID, s.ceiling)
	if err != nil {
		return nil, common.NewStorageError("drain queue", err)
	}
	return entries, nil
}

// CompleteEntry removes a pushed entry. The record is marked synced unless
// it still has other pending intents or is gone locally.
//
// pushedAt is the updated_at of the state that was sent, zero when no row
// state went out. When the row was edited after it was read, an update entry
// stays queued, since that edit was deduplicated into it.
func (s *LocalStore) CompleteEntry(ctx context.Context, e models.SyncQueueEntry, pushedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	synced := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		q := queue.NewSQLiteRepository(tx)
		repo := expenses.NewSQLiteRepository(tx)

		if !pushedAt.IsZero() {
			rec, err := repo.GetByID(ctx, e.RecordID)
			switch {
			case errors.Is(err, common.ErrNotFound):
			case err != nil:
				return err
			case !rec.UpdatedAt.Equal(pushedAt) && e.Operation == models.OperationUpdate:
				s.logger.Debug(ctx, "record changed during push, entry kept",
					"record_id", e.RecordID, "sequence_id", e.SequenceID)
				return nil
			}
		}

		// A purge or sign-out may have dropped the entry meanwhile.
		err := q.Remove(ctx, e.SequenceID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		rest, err := q.ForRecord(ctx, e.RecordID)
		if err != nil {
			return err
		}
		if len(rest) > 0 {
			return nil
		}

		err = repo.MarkSynced(ctx, e.RecordID, s.now().UTC())
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		synced = true
		return nil
	})
	if err != nil {
		return false, common.NewStorageError("complete queue entry", err)
	}
	return synced, nil
}

// FailEntry bumps the entry's retry count and stores message both on the
// entry and, when the row still exists, on the record.
func (s *LocalStore) FailEntry(ctx context.Context, e models.SyncQueueEntry, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := queue.NewSQLiteRepository(tx).IncrementRetry(ctx, e.SequenceID, message)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		err = expenses.NewSQLiteRepository(tx).MarkSyncFailed(ctx, e.RecordID, message)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return common.NewStorageError("fail queue entry", err)
	}
	return nil
}

// StuckEntries lists entries that reached the retry ceiling.
func (s *LocalStore) StuckEntries(ctx context.Context, ownerID string) ([]models.SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := queue.NewSQLiteRepository(s.db).Stuck(ctx, ownerID, s.ceiling)
	if err != nil {
		return nil, common.NewStorageError("list stuck entries", err)
	}
	return entries, nil
}

// PurgeStuck drops entries that reached the retry ceiling.
func (s *LocalStore) PurgeStuck(ctx context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := queue.NewSQLiteRepository(s.db).PurgeStuck(ctx, ownerID, s.ceiling)
	if err != nil {
		return 0, common.NewStorageError("purge stuck entries", err)
	}
	return n, nil
}

// RetryStuck resets the retry count of stuck entries so the next cycle drains them.
func (s *LocalStore) RetryStuck(ctx context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := queue.NewSQLiteRepository(s.db).ResetStuck(ctx, ownerID, s.ceiling)
	if err != nil {
		return 0, common.NewStorageError("retry stuck entries", err)
	}
	return n, nil
}

// PendingCount counts every queued entry of the owner, stuck ones included.
func (s *LocalStore) PendingCount(ctx context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := queue.NewSQLiteRepository(s.db).Count(ctx, ownerID)
	if err != nil {
		return 0, common.NewStorageError("count queue", err)
	}
	return n, nil
}

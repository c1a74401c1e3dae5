package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/migrations"
	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/expenses"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/dbx"
	"github.com/dmitrijs2005/spendsync/internal/logging"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// DefaultRetryCeiling is the number of failed attempts after which a queue
// entry stops being drained.
const DefaultRetryCeiling = 3

// Options configures a LocalStore.
type Options struct {
	RetryCeiling int
	Logger       logging.Logger
	Now          func() time.Time
}

// LocalStore owns the expenses and sync_queue tables.
type LocalStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	ceiling int
	now     func() time.Time
	logger  logging.Logger

	// beforeRowDelete runs between the two steps of DeleteRecord.
	beforeRowDelete func(id string) error
}

// Open opens (creating if needed) the SQLite database at dsn, applies
// migrations and finishes deletes a previous process left half-done.
func Open(ctx context.Context, dsn string, opts Options) (*LocalStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	// One connection: the store is an embedded single-writer database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure local database: %w", err)
		}
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db, opts)
	if _, err := s.RecoverPendingDeletes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts Options) *LocalStore {
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = DefaultRetryCeiling
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &LocalStore{
		db:      db,
		ceiling: opts.RetryCeiling,
		now:     opts.Now,
		logger:  opts.Logger.With("module", "local_store"),
	}
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// RetryCeiling reports the configured ceiling.
func (s *LocalStore) RetryCeiling() int {
	return s.ceiling
}

// Metadata returns the key/value repository sharing this database.
func (s *LocalStore) Metadata() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// ListRecords returns the owner's records, newest occurrence first.
func (s *LocalStore) ListRecords(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := expenses.NewSQLiteRepository(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, common.NewStorageError("list records", err)
	}
	return recs, nil
}

// GetRecord returns common.ErrNotFound for an unknown id.
func (s *LocalStore) GetRecord(ctx context.Context, id string) (*models.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := expenses.NewSQLiteRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, common.NewStorageError("get record", err)
	}
	return rec, nil
}

// InsertRecord stores a new unsynced record and enqueues its create intent.
func (s *LocalStore) InsertRecord(ctx context.Context, data models.ExpenseData, ownerID string) (*models.ExpenseRecord, error) {
	if ownerID == "" {
		return nil, common.ErrNoOwner
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp(time.Time{})
	rec := &models.ExpenseRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Amount:        data.Amount,
		Category:      data.Category,
		OccurredAt:    data.OccurredAt.UTC(),
		Notes:         data.Notes,
		AttachmentRef: data.AttachmentRef,
		CreatedAt:     now,
		UpdatedAt:     now,
		SyncState:     models.SyncStateUnsynced,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := expenses.NewSQLiteRepository(tx).Insert(ctx, rec); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, rec, models.OperationCreate)
	})
	if err != nil {
		return nil, common.NewStorageError("insert record", err)
	}

	s.logger.Debug(ctx, "record inserted", "id", rec.ID)
	return rec, nil
}

// UpdateRecord applies patch, stamps updated_at and enqueues an update intent.
func (s *LocalStore) UpdateRecord(ctx context.Context, id string, patch models.ExpensePatch) (*models.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *models.ExpenseRecord
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := expenses.NewSQLiteRepository(tx)

		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := patch.Apply(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.stamp(rec.UpdatedAt)
		rec.SyncState = models.SyncStateUnsynced

		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return s.enqueue(ctx, tx, rec, models.OperationUpdate)
	})
	if err != nil {
		return nil, common.NewStorageError("update record", err)
	}
	return updated, nil
}

// DeleteRecord records the delete intent durably, then removes the row.
func (s *LocalStore) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := expenses.NewSQLiteRepository(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, tx, rec, models.OperationDelete)
	})
	if err != nil {
		return common.NewStorageError("record delete intent", err)
	}

	if s.beforeRowDelete != nil {
		if err := s.beforeRowDelete(id); err != nil {
			return common.NewStorageError("delete record", err)
		}
	}

	if err := expenses.NewSQLiteRepository(s.db).DeleteByID(ctx, id); err != nil {
		return common.NewStorageError("delete record", err)
	}
	return nil
}

// RecoverPendingDeletes removes rows whose delete intent is already queued,
// finishing a DeleteRecord that was interrupted after its first step.
func (s *LocalStore) RecoverPendingDeletes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id IN
		(SELECT record_id FROM sync_queue WHERE operation = ?)`, string(models.OperationDelete))
	if err != nil {
		return 0, common.NewStorageError("recover pending deletes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.NewStorageError("recover pending deletes", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "finished interrupted deletes", "count", n)
	}
	return n, nil
}

// UpsertFromRemote writes a pulled record verbatim without enqueuing anything.
//
// The remote copy always wins. Records whose delete intent is still queued
// are skipped so a pull cannot resurrect them; records that still carry
// another pending intent keep the unsynced state.
func (s *LocalStore) UpsertFromRemote(ctx context.Context, rec models.ExpenseRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		pending, err := queue.NewSQLiteRepository(tx).ForRecord(ctx, rec.ID)
		if err != nil {
			return err
		}
		for _, e := range pending {
			if e.Operation == models.OperationDelete {
				return nil
			}
		}

		now := s.now().UTC()
		rec.SyncState = models.SyncStateSynced
		rec.LastSyncError = nil
		rec.LastSyncedAt = &now
		if len(pending) > 0 {
			rec.SyncState = models.SyncStateUnsynced
		}
		if err := expenses.NewSQLiteRepository(tx).Upsert(ctx, &rec); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, common.NewStorageError("upsert from remote", err)
	}
	return written, nil
}

// MarkSynced flags the record as matching the remote copy.
func (s *LocalStore) MarkSynced(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := expenses.NewSQLiteRepository(s.db).MarkSynced(ctx, id, s.now().UTC()); err != nil {
		return common.NewStorageError("mark synced", err)
	}
	return nil
}

// MarkSyncFailed records a sync diagnostic on the record.
func (s *LocalStore) MarkSyncFailed(ctx context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := expenses.NewSQLiteRepository(s.db).MarkSyncFailed(ctx, id, message); err != nil {
		return common.NewStorageError("mark sync failed", err)
	}
	return nil
}

// CountUnsynced counts the owner's records not yet confirmed remotely.
func (s *LocalStore) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := expenses.NewSQLiteRepository(s.db).CountByState(ctx, ownerID, models.SyncStateUnsynced)
	if err != nil {
		return 0, common.NewStorageError("count unsynced", err)
	}
	return n, nil
}

// PurgeOwner deletes every record and queue entry of the owner (sign-out).
func (s *LocalStore) PurgeOwner(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := queue.NewSQLiteRepository(tx).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		_, err := expenses.NewSQLiteRepository(tx).DeleteByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return common.NewStorageError("purge owner", err)
	}
	return nil
}

// enqueue appends an intent carrying a JSON snapshot of rec. A duplicate
// (record, operation) pair is dropped.
func (s *LocalStore) enqueue(ctx context.Context, tx dbx.DBTX, rec *models.ExpenseRecord, op models.Operation) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", op, err)
	}
	added, err := queue.NewSQLiteRepository(tx).Enqueue(ctx, &models.SyncQueueEntry{
		RecordID:  rec.ID,
		OwnerID:   rec.OwnerID,
		Operation: op,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if !added {
		s.logger.Debug(ctx, "queue entry already pending", "record_id", rec.ID, "operation", op)
	}
	return nil
}

// stamp returns the current time, nudged past prev so updated_at strictly
// increases even when the clock does not.
func (s *LocalStore) stamp(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/dbx"
)

const entryColumns = `sequence_id, record_id, owner_id, operation, payload, created_at, retry_count, last_error`

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.SyncQueueEntry) (bool, error) {
	query := `INSERT INTO sync_queue (record_id, owner_id, operation, payload, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(record_id, operation) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		e.RecordID, e.OwnerID, string(e.Operation), e.Payload, e.CreatedAt.UTC().UnixMicro())
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s for %s: %w", e.Operation, e.RecordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		e.SequenceID = id
	}
	return true, nil
}

func (r *SQLiteRepository) Drain(ctx context.Context, ownerID string, ceiling int) ([]models.SyncQueueEntry, error) {
	return r.selectEntries(ctx,
		`SELECT `+entryColumns+` FROM sync_queue WHERE owner_id = ? AND retry_count < ? ORDER BY sequence_id`,
		ownerID, ceiling)
}

func (r *SQLiteRepository) Stuck(ctx context.Context, ownerID string, ceiling int) ([]models.SyncQueueEntry, error) {
	return r.selectEntries(ctx,
		`SELECT `+entryColumns+` FROM sync_queue WHERE owner_id = ? AND retry_count >= ? ORDER BY sequence_id`,
		ownerID, ceiling)
}

func (r *SQLiteRepository) ForRecord(ctx context.Context, recordID string) ([]models.SyncQueueEntry, error) {
	return r.selectEntries(ctx,
		`SELECT `+entryColumns+` FROM sync_queue WHERE record_id = ? ORDER BY sequence_id`, recordID)
}

func (r *SQLiteRepository) Remove(ctx context.Context, sequenceID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE sequence_id = ?`, sequenceID)
	if err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return expectOneRow(res, sequenceID)
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, sequenceID int64, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE sequence_id = ?`,
		message, sequenceID)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return expectOneRow(res, sequenceID)
}

func (r *SQLiteRepository) PurgeStuck(ctx context.Context, ownerID string, ceiling int) (int64, error) {
	return r.execCount(ctx, "purge stuck entries",
		`DELETE FROM sync_queue WHERE owner_id = ? AND retry_count >= ?`, ownerID, ceiling)
}

func (r *SQLiteRepository) ResetStuck(ctx context.Context, ownerID string, ceiling int) (int64, error) {
	return r.execCount(ctx, "reset stuck entries",
		`UPDATE sync_queue SET retry_count = 0 WHERE owner_id = ? AND retry_count >= ?`, ownerID, ceiling)
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	return r.execCount(ctx, "purge queue", `DELETE FROM sync_queue WHERE owner_id = ?`, ownerID)
}

func (r *SQLiteRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) selectEntries(ctx context.Context, query string, args ...any) ([]models.SyncQueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue entries: %w", err)
	}
	defer rows.Close()

	result := make([]models.SyncQueueEntry, 0)
	for rows.Next() {
		var (
			e         models.SyncQueueEntry
			op        string
			createdAt int64
			lastError sql.NullString
		)
		if err := rows.Scan(&e.SequenceID, &e.RecordID, &e.OwnerID, &op, &e.Payload,
			&createdAt, &e.RetryCount, &lastError); err != nil {
			return nil, err
		}
		e.Operation = models.Operation(op)
		e.CreatedAt = time.UnixMicro(createdAt).UTC()
		e.LastError = dbx.StringPtr(lastError)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func expectOneRow(res sql.Result, sequenceID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue entry %d: %w", sequenceID, common.ErrNotFound)
	}
	return nil
}

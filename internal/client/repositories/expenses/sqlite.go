package expenses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/dbx"
)

const recordColumns = `id, owner_id, amount, category, occurred_at, notes, attachment_ref,
	created_at, updated_at, sync_state, last_sync_error, last_synced_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.ExpenseRecord) error {
	query := `INSERT INTO expenses (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec *models.ExpenseRecord) error {
	query := `UPDATE expenses SET amount = ?, category = ?, occurred_at = ?, notes = ?,
			attachment_ref = ?, updated_at = ?, sync_state = ?, last_sync_error = ?, last_synced_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		rec.Amount, rec.Category, toMicros(rec.OccurredAt), dbx.NullString(rec.Notes),
		dbx.NullString(rec.AttachmentRef), toMicros(rec.UpdatedAt), string(rec.SyncState),
		dbx.NullString(rec.LastSyncError), nullMicros(rec.LastSyncedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return expectOneRow(res, rec.ID)
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.ExpenseRecord) error {
	query := `INSERT INTO expenses (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			amount = excluded.amount,
			category = excluded.category,
			occurred_at = excluded.occurred_at,
			notes = excluded.notes,
			attachment_ref = excluded.attachment_ref,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_state = excluded.sync_state,
			last_sync_error = excluded.last_sync_error,
			last_synced_at = excluded.last_synced_at`
	_, err := r.db.ExecContext(ctx, query, recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to upsert expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ExpenseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM expenses WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM expenses WHERE owner_id = ?
		ORDER BY occurred_at DESC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select expenses: %w", err)
	}
	defer rows.Close()

	result := make([]models.ExpenseRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE expenses SET sync_state = ?, last_sync_error = NULL, last_synced_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(models.SyncStateSynced), toMicros(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark expense synced: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id string, message string) error {
	query := `UPDATE expenses SET sync_state = ?, last_sync_error = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(models.SyncStateUnsynced), message, id)
	if err != nil {
		return fmt.Errorf("failed to mark expense sync failure: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) CountByState(ctx context.Context, ownerID string, state models.SyncState) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE owner_id = ? AND sync_state = ?`, ownerID, string(state)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*models.ExpenseRecord, error) {
	var (
		rec                                 models.ExpenseRecord
		occurredAt, createdAt, updatedAt    int64
		notes, attachmentRef, lastSyncError sql.NullString
		lastSyncedAt                        sql.NullInt64
		state                               string
	)
	err := s.Scan(&rec.ID, &rec.OwnerID, &rec.Amount, &rec.Category, &occurredAt, &notes, &attachmentRef,
		&createdAt, &updatedAt, &state, &lastSyncError, &lastSyncedAt)
	if err != nil {
		return nil, err
	}
	rec.OccurredAt = fromMicros(occurredAt)
	rec.CreatedAt = fromMicros(createdAt)
	rec.UpdatedAt = fromMicros(updatedAt)
	rec.SyncState = models.SyncState(state)
	rec.Notes = dbx.StringPtr(notes)
	rec.AttachmentRef = dbx.StringPtr(attachmentRef)
	rec.LastSyncError = dbx.StringPtr(lastSyncError)
	if lastSyncedAt.Valid {
		t := fromMicros(lastSyncedAt.Int64)
		rec.LastSyncedAt = &t
	}
	return &rec, nil
}

func recordArgs(rec *models.ExpenseRecord) []any {
	return []any{
		rec.ID, rec.OwnerID, rec.Amount, rec.Category, toMicros(rec.OccurredAt),
		dbx.NullString(rec.Notes), dbx.NullString(rec.AttachmentRef),
		toMicros(rec.CreatedAt), toMicros(rec.UpdatedAt), string(rec.SyncState),
		dbx.NullString(rec.LastSyncError), nullMicros(rec.LastSyncedAt),
	}
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/dbx"
	"github.com/dmitrijs2005/spendsync/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLSTATE codes the adapter cares about.
const (
	codeUniqueViolation      = "23505"
	codeInvalidTextRepr      = "22P02"
	codeInsufficientPrivs    = "42501"
	codeInvalidAuthorization = "28000"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

const recordColumns = `id, owner_id, amount, category, occurred_at, notes, attachment_ref, created_at, updated_at`

// PostgresAdapter implements Adapter over a Postgres-compatible backend.
type PostgresAdapter struct {
	db      *sql.DB
	timeout time.Duration
	logger  logging.Logger
}

// NewPostgresAdapter wraps an open pool. A zero timeout means DefaultTimeout.
func NewPostgresAdapter(db *sql.DB, timeout time.Duration, logger logging.Logger) *PostgresAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PostgresAdapter{db: db, timeout: timeout, logger: logger.With("module", "remote")}
}

// OpenPostgres opens a pgx pool for dsn. The connection is lazy: an
// unreachable backend is not an error here, the first call or Ping reports it.
func OpenPostgres(dsn string, timeout time.Duration, logger logging.Logger) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPostgresAdapter(db, timeout, logger), nil
}

func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}

func (a *PostgresAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		return a.mapError("ping", err)
	}
	return nil
}

// Create inserts the record with its local id. A duplicate id means an
// earlier attempt already landed.
func (a *PostgresAdapter) Create(ctx context.Context, rec models.ExpenseRecord) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return a.insert(ctx, rec)
}

// insert is shared by Create and the Update fallback. A duplicate id is
// already applied for a create but, after an update matched nothing, means
// the id belongs to another owner.
func (a *PostgresAdapter) insert(ctx context.Context, rec models.ExpenseRecord) Result {
	return a.insertAs(ctx, rec, models.OperationCreate)
}

func (a *PostgresAdapter) insertAs(ctx context.Context, rec models.ExpenseRecord, op models.Operation) Result {
	query := `INSERT INTO expenses (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := a.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Amount, rec.Category, rec.OccurredAt.UTC(),
		dbx.NullString(rec.Notes), dbx.NullString(rec.AttachmentRef),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		if sqlState(err) == codeUniqueViolation {
			if op == models.OperationUpdate {
				return failed(fmt.Errorf("remote update %s: %w", rec.ID, ErrForeignRecord))
			}
			a.logger.Debug(ctx, "create already applied", "id", rec.ID)
			return alreadyApplied()
		}
		return failed(a.mapError(string(op), err))
	}
	return applied()
}

// Update overwrites the owner's row. A missing row falls back to Create so a
// record whose create was lost still converges.
func (a *PostgresAdapter) Update(ctx context.Context, rec models.ExpenseRecord) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	query := `UPDATE expenses
		SET amount = $3, category = $4, occurred_at = $5, notes = $6, attachment_ref = $7, updated_at = $8
		WHERE id = $1 AND owner_id = $2`
	res, err := a.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Amount, rec.Category, rec.OccurredAt.UTC(),
		dbx.NullString(rec.Notes), dbx.NullString(rec.AttachmentRef), rec.UpdatedAt.UTC())
	if err != nil {
		return failed(a.mapError("update", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return failed(a.mapError("update", err))
	}
	if n == 0 {
		a.logger.Debug(ctx, "update found no row, creating", "id", rec.ID)
		return a.insertAs(ctx, rec, models.OperationUpdate)
	}
	return applied()
}

// Delete removes the owner's row. Deleting a missing row, or an id the
// backend cannot even parse, is success-equivalent.
func (a *PostgresAdapter) Delete(ctx context.Context, id, ownerID string) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		if sqlState(err) == codeInvalidTextRepr {
			return alreadyApplied()
		}
		return failed(a.mapError("delete", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return failed(a.mapError("delete", err))
	}
	if n == 0 {
		return alreadyApplied()
	}
	return applied()
}

// PullAll returns every record of the owner, newest occurrence first.
func (a *PostgresAdapter) PullAll(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM expenses WHERE owner_id = $1 ORDER BY occurred_at DESC`, ownerID)
	if err != nil {
		return nil, a.mapError("pull", err)
	}
	defer rows.Close()

	result := make([]models.ExpenseRecord, 0)
	for rows.Next() {
		var (
			rec           models.ExpenseRecord
			notes, attRef sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Amount, &rec.Category, &rec.OccurredAt,
			&notes, &attRef, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, a.mapError("pull", err)
		}
		rec.OccurredAt = rec.OccurredAt.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		rec.Notes = dbx.StringPtr(notes)
		rec.AttachmentRef = dbx.StringPtr(attRef)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, a.mapError("pull", err)
	}
	return result, nil
}

// mapError classifies a driver error. Rejected credentials are
// ErrUnauthorized, everything else is worth retrying later.
func (a *PostgresAdapter) mapError(op string, err error) error {
	switch sqlState(err) {
	case codeInsufficientPrivs, codeInvalidAuthorization:
		return fmt.Errorf("remote %s: %w: %w", op, common.ErrUnauthorized, err)
	}
	return fmt.Errorf("remote %s: %w: %w", op, common.ErrTransientRemote, err)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

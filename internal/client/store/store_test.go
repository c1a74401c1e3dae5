package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/migrations"
	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const owner = "owner-1"

func newTestStore(t *testing.T, opts Options) *LocalStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return New(db, opts)
}

// frozenClock always returns the same instant.
func frozenClock() func() time.Time {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func coffee() models.ExpenseData {
	return models.ExpenseData{
		Amount:     decimal.RequireFromString("4.50"),
		Category:   "coffee",
		OccurredAt: time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC),
	}
}

func TestInsertRecord_EnqueuesCreateAtomically(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.SyncStateUnsynced, rec.SyncState)

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.ID, entries[0].RecordID)
	assert.Equal(t, models.OperationCreate, entries[0].Operation)

	var payload models.ExpenseRecord
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, "coffee", payload.Category)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("4.5")))

	n, err := s.CountUnsynced(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertRecord_RequiresOwnerAndValidData(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, coffee(), "")
	require.ErrorIs(t, err, common.ErrNoOwner)

	bad := coffee()
	bad.Category = "  "
	_, err = s.InsertRecord(ctx, bad, owner)
	require.ErrorIs(t, err, common.ErrValidation)

	n, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateRecord_DedupsQueueEntries(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	for _, cat := range []string{"tea", "juice", "water"} {
		c := cat
		_, err := s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Category: &c})
		require.NoError(t, err)
	}

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OperationCreate, entries[0].Operation)
	assert.Equal(t, models.OperationUpdate, entries[1].Operation)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "water", got.Category)
}

func TestUpdateRecord_UpdatedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	s := newTestStore(t, Options{Now: frozenClock()})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	prev := rec.UpdatedAt
	for i := 0; i < 3; i++ {
		notes := "n"
		got, err := s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Notes: &notes})
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.After(prev), "updated_at must move forward")
		prev = got.UpdatedAt
	}

	stored, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(prev))
}

func TestUpdateRecord_UnknownAndInvalid(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	c := "x"
	_, err := s.UpdateRecord(ctx, "missing", models.ExpensePatch{Category: &c})
	require.ErrorIs(t, err, common.ErrNotFound)

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	neg := decimal.NewFromInt(-1)
	_, err = s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Amount: &neg})
	require.ErrorIs(t, err, common.ErrValidation)

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a rejected update must not enqueue")
}

func TestDeleteRecord_RemovesRowAndQueuesSnapshot(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRecord(ctx, rec.ID))

	_, err = s.GetRecord(ctx, rec.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	del := entries[1]
	assert.Equal(t, models.OperationDelete, del.Operation)

	var snap models.ExpenseRecord
	require.NoError(t, json.Unmarshal(del.Payload, &snap))
	assert.Equal(t, rec.ID, snap.ID)
	assert.Equal(t, owner, snap.OwnerID)

	require.ErrorIs(t, s.DeleteRecord(ctx, rec.ID), common.ErrNotFound)
}

func TestDeleteRecord_InterruptedKeepsIntentAndRecovers(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	crash := errors.New("process killed")
	s.beforeRowDelete = func(string) error { return crash }
	err = s.DeleteRecord(ctx, rec.ID)
	require.ErrorIs(t, err, crash)
	require.ErrorIs(t, err, common.ErrStorage)

	_, err = s.GetRecord(ctx, rec.ID)
	require.NoError(t, err, "row survives the interruption")

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OperationDelete, entries[1].Operation)

	s.beforeRowDelete = nil
	n, err := s.RecoverPendingDeletes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.GetRecord(ctx, rec.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	entries, err = s.Drain(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "delete intent is still replayed")
}

func TestUpsertFromRemote_NeverEnqueues(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	remote := models.ExpenseRecord{
		ID:         "remote-1",
		OwnerID:    owner,
		Amount:     decimal.RequireFromString("12.00"),
		Category:   "books",
		OccurredAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		SyncState:  models.SyncStateUnsynced,
	}
	written, err := s.UpsertFromRemote(ctx, remote)
	require.NoError(t, err)
	assert.True(t, written)

	remote.Category = "magazines"
	_, err = s.UpsertFromRemote(ctx, remote)
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "magazines", got.Category)
	assert.Equal(t, models.SyncStateSynced, got.SyncState)
	assert.NotNil(t, got.LastSyncedAt)

	n, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertFromRemote_OverwritesButKeepsPendingUnsynced(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	remote := *rec
	remote.Category = "from-server"
	_, err = s.UpsertFromRemote(ctx, remote)
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "from-server", got.Category)
	assert.Equal(t, models.SyncStateUnsynced, got.SyncState)
}

func TestUpsertFromRemote_SkipsRecordWithPendingDelete(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRecord(ctx, rec.ID))

	written, err := s.UpsertFromRemote(ctx, *rec)
	require.NoError(t, err)
	assert.False(t, written)

	_, err = s.GetRecord(ctx, rec.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCompleteEntry_MarksSyncedOnlyWhenNothingPending(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	c := "tea"
	_, err = s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Category: &c})
	require.NoError(t, err)

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	synced, err := s.CompleteEntry(ctx, entries[0], time.Time{})
	require.NoError(t, err)
	assert.False(t, synced)
	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateUnsynced, got.SyncState)

	synced, err = s.CompleteEntry(ctx, entries[1], time.Time{})
	require.NoError(t, err)
	assert.True(t, synced)
	got, err = s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, got.SyncState)
	assert.Nil(t, got.LastSyncError)
}

func TestCompleteEntry_DeletedRecordIsFine(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRecord(ctx, rec.ID))

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	for _, e := range entries {
		_, err := s.CompleteEntry(ctx, e, time.Time{})
		require.NoError(t, err)
	}

	n, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompleteEntry_KeepsUpdateEditedDuringPush(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	c := "tea"
	sent, err := s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Category: &c})
	require.NoError(t, err)
	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	_, err = s.CompleteEntry(ctx, entries[0], rec.UpdatedAt)
	require.NoError(t, err)

	// Edited while the update was on the wire; deduplicated into the same entry.
	c = "juice"
	_, err = s.UpdateRecord(ctx, rec.ID, models.ExpensePatch{Category: &c})
	require.NoError(t, err)

	synced, err := s.CompleteEntry(ctx, entries[1], sent.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, synced)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateUnsynced, got.SyncState)
	assert.Equal(t, "juice", got.Category)
	left, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, models.OperationUpdate, left[0].Operation)

	synced, err = s.CompleteEntry(ctx, left[0], got.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, synced)
}

func TestCompleteEntry_AfterPurgeIsNoop(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, s.PurgeOwner(ctx, owner))

	synced, err := s.CompleteEntry(ctx, entries[0], rec.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, synced)
	require.NoError(t, s.FailEntry(ctx, entries[0], "late failure"))

	left, err := s.ListRecords(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestFailEntry_RetryCeilingStopsDraining(t *testing.T) {
	s := newTestStore(t, Options{RetryCeiling: 2})
	ctx := context.Background()

	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		entries, err := s.Drain(ctx, owner)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NoError(t, s.FailEntry(ctx, entries[0], "remote unavailable"))
	}

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stuck, err := s.StuckEntries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, 2, stuck[0].RetryCount)
	require.NotNil(t, stuck[0].LastError)
	assert.Equal(t, "remote unavailable", *stuck[0].LastError)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateUnsynced, got.SyncState)
	require.NotNil(t, got.LastSyncError)

	n, err := s.RetryStuck(ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	entries, err = s.Drain(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPurgeStuck_DropsOnlyStuckEntries(t *testing.T) {
	s := newTestStore(t, Options{RetryCeiling: 1})
	ctx := context.Background()

	a, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)

	entries, err := s.Drain(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, a.ID, entries[0].RecordID)
	require.NoError(t, s.FailEntry(ctx, entries[0], "boom"))

	n, err := s.PurgeStuck(ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestPurgeOwner_RemovesOnlyThatOwner(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	other, err := s.InsertRecord(ctx, coffee(), "owner-2")
	require.NoError(t, err)

	require.NoError(t, s.PurgeOwner(ctx, owner))

	mine, err := s.ListRecords(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, mine)
	n, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	theirs, err := s.ListRecords(ctx, "owner-2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, other.ID, theirs[0].ID)
}

func TestOpen_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "spendsync.db")

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	rec, err := s.InsertRecord(ctx, coffee(), owner)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	n, err := s.PendingCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetadata_SharesDatabase(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Metadata().SetString(ctx, "k", "v"))
	v, err := s.Metadata().GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

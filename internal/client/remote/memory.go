package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/common"
)

// Call is one write observed by MemoryAdapter.
type Call struct {
	Op models.Operation
	ID string
}

// MemoryAdapter is an in-process backend with the same idempotency rules as
// PostgresAdapter. It serves demo runs without a DSN and tests.
type MemoryAdapter struct {
	mu      sync.Mutex
	records map[string]models.ExpenseRecord
	offline bool
	failIDs map[string]error
	calls   []Call
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		records: make(map[string]models.ExpenseRecord),
		failIDs: make(map[string]error),
	}
}

// SetOffline makes every call fail as unreachable.
func (m *MemoryAdapter) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// FailID makes writes for id fail with err until cleared with a nil err.
func (m *MemoryAdapter) FailID(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failIDs, id)
		return
	}
	m.failIDs[id] = err
}

// Calls returns the writes seen so far in order.
func (m *MemoryAdapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Get returns the stored copy of id.
func (m *MemoryAdapter) Get(id string) (models.ExpenseRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec.Clone(), ok
}

// Put stores rec directly, as if another device had written it.
func (m *MemoryAdapter) Put(rec models.ExpenseRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = remoteCopy(rec)
}

// Len counts stored records.
func (m *MemoryAdapter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreachable("ping")
}

func (m *MemoryAdapter) Create(ctx context.Context, rec models.ExpenseRecord) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(models.OperationCreate, rec.ID); err != nil {
		return failed(err)
	}
	if _, ok := m.records[rec.ID]; ok {
		return alreadyApplied()
	}
	m.records[rec.ID] = remoteCopy(rec)
	return applied()
}

func (m *MemoryAdapter) Update(ctx context.Context, rec models.ExpenseRecord) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(models.OperationUpdate, rec.ID); err != nil {
		return failed(err)
	}
	cur, ok := m.records[rec.ID]
	if ok && cur.OwnerID != rec.OwnerID {
		return failed(fmt.Errorf("remote update %s: %w", rec.ID, ErrForeignRecord))
	}
	m.records[rec.ID] = remoteCopy(rec)
	return applied()
}

func (m *MemoryAdapter) Delete(ctx context.Context, id, ownerID string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(models.OperationDelete, id); err != nil {
		return failed(err)
	}
	cur, ok := m.records[id]
	if !ok || cur.OwnerID != ownerID {
		return alreadyApplied()
	}
	delete(m.records, id)
	return applied()
}

func (m *MemoryAdapter) PullAll(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unreachable("pull"); err != nil {
		return nil, err
	}
	result := make([]models.ExpenseRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			result = append(result, rec.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, nil
}

func (m *MemoryAdapter) writeErr(op models.Operation, id string) error {
	m.calls = append(m.calls, Call{Op: op, ID: id})
	if err := m.unreachable(string(op)); err != nil {
		return err
	}
	if err, ok := m.failIDs[id]; ok {
		return fmt.Errorf("remote %s: %w: %w", op, common.ErrTransientRemote, err)
	}
	return nil
}

func (m *MemoryAdapter) unreachable(op string) error {
	if m.offline {
		return fmt.Errorf("remote %s: %w: backend unreachable", op, common.ErrTransientRemote)
	}
	return nil
}

// remoteCopy drops the client-only sync columns.
func remoteCopy(rec models.ExpenseRecord) models.ExpenseRecord {
	c := rec.Clone()
	c.SyncState = ""
	c.LastSyncError = nil
	c.LastSyncedAt = nil
	return c
}

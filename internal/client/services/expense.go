// Package services contains the application services the UI talks to.
// This file defines the expense service: the optimistic update coordinator
// that keeps an in-memory view of the owner's records in step with the
// local store.
package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/auth"
	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/remote"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/logging"
	"github.com/google/uuid"
)

// PlaceholderPrefix marks view entries that are not persisted anywhere yet.
const PlaceholderPrefix = "placeholder-"

// MutationStatus is the outcome of an optimistic mutation.
type MutationStatus string

const (
	MutationApplied    MutationStatus = "applied"
	MutationRolledBack MutationStatus = "rolled_back"
)

// Mutation reports what happened to an optimistic change. Reason is set
// only when the change was rolled back.
type Mutation struct {
	Status MutationStatus
	Record *models.ExpenseRecord
	Reason error
}

// ExpenseStore is the subset of the local store the service uses.
type ExpenseStore interface {
	ListRecords(ctx context.Context, ownerID string) ([]models.ExpenseRecord, error)
	InsertRecord(ctx context.Context, data models.ExpenseData, ownerID string) (*models.ExpenseRecord, error)
	UpdateRecord(ctx context.Context, id string, patch models.ExpensePatch) (*models.ExpenseRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	UpsertFromRemote(ctx context.Context, rec models.ExpenseRecord) (bool, error)
}

// Notifier is told about every local mutation; the sync service uses it to
// push changes promptly.
type Notifier interface {
	SyncNow(ctx context.Context)
}

// ExpenseService defines the expense operations for the UI.
//
// Contract:
//   - List: reload the owner's records from the local store.
//   - Add, Update, Delete: durable local-first mutations; errors surface as is.
//   - AddRemoteFirst: show a placeholder, write to the remote, then replace
//     or roll back the placeholder.
//   - Snapshot: copy of the current in-memory view.
//
// Every method needs a signed-in owner and returns common.ErrNoOwner otherwise.
type ExpenseService interface {
	List(ctx context.Context) ([]models.ExpenseRecord, error)
	Add(ctx context.Context, data models.ExpenseData) (*models.ExpenseRecord, error)
	Update(ctx context.Context, id string, patch models.ExpensePatch) (*models.ExpenseRecord, error)
	Delete(ctx context.Context, id string) error
	AddRemoteFirst(ctx context.Context, data models.ExpenseData) Mutation
	Snapshot() []models.ExpenseRecord
}

type expenseService struct {
	store    ExpenseStore
	remote   remote.Adapter
	owners   auth.OwnerProvider
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time

	mu   sync.RWMutex
	view []models.ExpenseRecord
}

// NewExpenseService constructs an ExpenseService. notifier may be nil.
func NewExpenseService(store ExpenseStore, r remote.Adapter, owners auth.OwnerProvider, notifier Notifier, logger logging.Logger) ExpenseService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &expenseService{
		store:    store,
		remote:   r,
		owners:   owners,
		notifier: notifier,
		logger:   logger.With("module", "expenses"),
		now:      time.Now,
	}
}

func (s *expenseService) owner() (string, error) {
	owner, ok := s.owners.OwnerID()
	if !ok {
		return "", common.ErrNoOwner
	}
	return owner, nil
}

func (s *expenseService) List(ctx context.Context) ([]models.ExpenseRecord, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListRecords(ctx, owner)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.view = cloneAll(recs)
	s.mu.Unlock()
	return recs, nil
}

func (s *expenseService) Add(ctx context.Context, data models.ExpenseData) (*models.ExpenseRecord, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	rec, err := s.store.InsertRecord(ctx, data, owner)
	if err != nil {
		return nil, err
	}
	s.put(*rec)
	s.notify(ctx)
	return rec, nil
}

func (s *expenseService) Update(ctx context.Context, id string, patch models.ExpensePatch) (*models.ExpenseRecord, error) {
	if _, err := s.owner(); err != nil {
		return nil, err
	}
	rec, err := s.store.UpdateRecord(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.put(*rec)
	s.notify(ctx)
	return rec, nil
}

func (s *expenseService) Delete(ctx context.Context, id string) error {
	if _, err := s.owner(); err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return err
	}
	s.remove(id)
	s.notify(ctx)
	return nil
}

// AddRemoteFirst writes straight to the remote. The UI sees a placeholder
// until the remote answers; a failure removes it again.
func (s *expenseService) AddRemoteFirst(ctx context.Context, data models.ExpenseData) Mutation {
	owner, err := s.owner()
	if err != nil {
		return Mutation{Status: MutationRolledBack, Reason: err}
	}
	if err := data.Validate(); err != nil {
		return Mutation{Status: MutationRolledBack, Reason: err}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	rec := models.ExpenseRecord{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Amount:        data.Amount,
		Category:      data.Category,
		OccurredAt:    data.OccurredAt.UTC(),
		Notes:         data.Notes,
		AttachmentRef: data.AttachmentRef,
		CreatedAt:     now,
		UpdatedAt:     now,
		SyncState:     models.SyncStateUnsynced,
	}
	placeholder := rec.Clone()
	placeholder.ID = PlaceholderPrefix + uuid.NewString()
	s.put(placeholder)

	res := s.remote.Create(ctx, rec)
	if !res.OK() {
		s.remove(placeholder.ID)
		s.logger.Warn(ctx, "remote-first add rolled back", "error", res.Err)
		return Mutation{Status: MutationRolledBack, Reason: res.Err}
	}

	if _, err := s.store.UpsertFromRemote(ctx, rec); err != nil {
		// The remote has the record; the next pull stores it locally.
		s.logger.Warn(ctx, "failed to store remote-first record locally", "id", rec.ID, "error", err)
	}
	rec.SyncState = models.SyncStateSynced
	s.replace(placeholder.ID, rec)
	return Mutation{Status: MutationApplied, Record: &rec}
}

func (s *expenseService) Snapshot() []models.ExpenseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.view)
}

func (s *expenseService) notify(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.SyncNow(ctx)
	}
}

// put inserts or replaces rec in the view, keeping the store's order.
func (s *expenseService) put(rec models.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = upsert(s.view, rec.ID, rec)
}

func (s *expenseService) replace(oldID string, rec models.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = upsert(drop(s.view, oldID), rec.ID, rec)
}

func (s *expenseService) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = drop(s.view, id)
}

func upsert(view []models.ExpenseRecord, id string, rec models.ExpenseRecord) []models.ExpenseRecord {
	view = append(drop(view, id), rec.Clone())
	sort.SliceStable(view, func(i, j int) bool {
		if !view[i].OccurredAt.Equal(view[j].OccurredAt) {
			return view[i].OccurredAt.After(view[j].OccurredAt)
		}
		return view[i].CreatedAt.After(view[j].CreatedAt)
	})
	return view
}

func drop(view []models.ExpenseRecord, id string) []models.ExpenseRecord {
	out := view[:0]
	for _, r := range view {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func cloneAll(recs []models.ExpenseRecord) []models.ExpenseRecord {
	out := make([]models.ExpenseRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/auth"
	"github.com/dmitrijs2005/spendsync/internal/client/connectivity"
	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/remote"
	"github.com/dmitrijs2005/spendsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/logging"
)

// DefaultInterval is the period of background cycles.
const DefaultInterval = 5 * time.Minute

// Store is the part of the local store a cycle needs.
type Store interface {
	Drain(ctx context.Context, ownerID string) ([]models.SyncQueueEntry, error)
	GetRecord(ctx context.Context, id string) (*models.ExpenseRecord, error)
	CompleteEntry(ctx context.Context, e models.SyncQueueEntry, pushedAt time.Time) (bool, error)
	FailEntry(ctx context.Context, e models.SyncQueueEntry, message string) error
	UpsertFromRemote(ctx context.Context, rec models.ExpenseRecord) (bool, error)
	CountUnsynced(ctx context.Context, ownerID string) (int, error)
	PendingCount(ctx context.Context, ownerID string) (int, error)
	PurgeOwner(ctx context.Context, ownerID string) error
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Now      func() time.Time
	// Metadata, when set, records the time of the last clean cycle.
	Metadata metadata.Repository
	// OnComplete runs after every cycle that did work.
	OnComplete func(ctx context.Context, r Result)
}

// Service runs sync cycles.
type Service struct {
	store   Store
	remote  remote.Adapter
	checker connectivity.Checker
	owners  auth.OwnerProvider
	logger  logging.Logger
	opts    Options

	running atomic.Bool
	online  atomic.Bool
	wg      sync.WaitGroup

	mu         sync.RWMutex
	phase      Phase
	last       *Result
	lastSyncAt time.Time
}

// NewService wires a Service. A nil checker treats the remote as always reachable.
func NewService(store Store, r remote.Adapter, checker connectivity.Checker, owners auth.OwnerProvider, logger logging.Logger, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if checker == nil {
		checker = connectivity.Static(true)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		store:   store,
		remote:  r,
		checker: checker,
		owners:  owners,
		logger:  logger.With("module", "sync"),
		opts:    opts,
		phase:   PhaseIdle,
	}
}

// RunCycle performs one push-then-pull cycle for the signed-in owner.
//
// It returns common.ErrNoOwner when nobody is signed in, a Coalesced result
// when another cycle is running and an Offline result when the remote is
// unreachable. Remote failures are reported in the Result, not as an error;
// the error is reserved for local storage failures.
func (s *Service) RunCycle(ctx context.Context, trigger Trigger) (Result, error) {
	owner, ok := s.owners.OwnerID()
	if !ok {
		return Result{Trigger: trigger}, common.ErrNoOwner
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug(ctx, "cycle already running, coalesced", "trigger", trigger)
		return Result{Trigger: trigger, Coalesced: true}, nil
	}
	defer s.running.Store(false)

	// A started cycle runs to completion; remote calls carry their own timeouts.
	ctx = context.WithoutCancel(ctx)

	res := Result{Trigger: trigger, StartedAt: s.opts.Now().UTC()}
	s.setPhase(PhaseSyncing, nil)

	online := s.checker.Online(ctx)
	s.online.Store(online)
	if !online {
		res.Offline = true
		res.FinishedAt = s.opts.Now().UTC()
		s.logger.Debug(ctx, "offline, skipping cycle", "trigger", trigger)
		s.setPhase(PhaseIdle, &res)
		return res, nil
	}

	err := s.push(ctx, owner, &res)
	if err == nil && !res.SignedOut {
		s.pull(ctx, owner, &res)
	}
	res.FinishedAt = s.opts.Now().UTC()

	if res.SignedOut || !s.signedIn(owner) {
		return s.abandon(ctx, owner, res, err)
	}

	switch {
	case err != nil:
		res.Errors = append(res.Errors, err.Error())
		s.setPhase(PhaseError, &res)
	case res.OK():
		s.setPhase(PhaseSuccess, &res)
		s.recordLastSync(ctx, res.FinishedAt)
	default:
		s.setPhase(PhaseError, &res)
	}

	s.logger.Info(ctx, "sync cycle finished",
		"trigger", trigger, "pushed", res.Pushed, "pulled", res.Pulled,
		"failed", res.Failed, "deferred", res.Deferred, "errors", len(res.Errors))

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(ctx, res)
	}
	return res, err
}

// push drains the queue. Once an entry of a record fails, later entries of
// that record wait for the next cycle so they never overtake it.
func (s *Service) push(ctx context.Context, owner string, res *Result) error {
	entries, err := s.store.Drain(ctx, owner)
	if err != nil {
		return err
	}

	blocked := make(map[string]bool)
	for _, e := range entries {
		if !s.signedIn(owner) {
			res.SignedOut = true
			return nil
		}
		if blocked[e.RecordID] {
			res.Deferred++
			continue
		}

		out, pushedAt, skip, err := s.dispatch(ctx, e)
		if err != nil {
			return err
		}
		if skip {
			if _, err := s.store.CompleteEntry(ctx, e, time.Time{}); err != nil {
				return err
			}
			continue
		}

		if out.OK() {
			if _, err := s.store.CompleteEntry(ctx, e, pushedAt); err != nil {
				return err
			}
			res.Pushed++
			continue
		}

		msg := out.Err.Error()
		s.logger.Warn(ctx, "push failed", "record_id", e.RecordID, "operation", e.Operation,
			"retry", e.RetryCount+1, "error", msg)
		if err := s.store.FailEntry(ctx, e, msg); err != nil {
			return err
		}
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %s", e.Operation, e.RecordID, msg))
		blocked[e.RecordID] = true
	}
	return nil
}

// dispatch sends one entry and returns the updated_at of the row state it
// sent. skip is true for an entry that has nothing left to push: a create or
// update whose record was deleted locally since.
func (s *Service) dispatch(ctx context.Context, e models.SyncQueueEntry) (remote.Result, time.Time, bool, error) {
	switch e.Operation {
	case models.OperationCreate, models.OperationUpdate:
		rec, err := s.store.GetRecord(ctx, e.RecordID)
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Debug(ctx, "record gone, dropping entry", "record_id", e.RecordID, "operation", e.Operation)
			return remote.Result{}, time.Time{}, true, nil
		}
		if err != nil {
			return remote.Result{}, time.Time{}, false, err
		}
		if e.Operation == models.OperationCreate {
			return s.remote.Create(ctx, *rec), rec.UpdatedAt, false, nil
		}
		return s.remote.Update(ctx, *rec), rec.UpdatedAt, false, nil

	case models.OperationDelete:
		id, owner := e.RecordID, e.OwnerID
		var snap models.ExpenseRecord
		if err := json.Unmarshal(e.Payload, &snap); err == nil && snap.ID != "" {
			id, owner = snap.ID, snap.OwnerID
		}
		return s.remote.Delete(ctx, id, owner), time.Time{}, false, nil
	}

	return remote.Result{
		Outcome: remote.OutcomeFailed,
		Err:     fmt.Errorf("%w: unknown operation %q", common.ErrValidation, e.Operation),
	}, time.Time{}, false, nil
}

// pull overwrites local copies with the remote record set.
func (s *Service) pull(ctx context.Context, owner string, res *Result) {
	recs, err := s.remote.PullAll(ctx, owner)
	if err != nil {
		s.logger.Warn(ctx, "pull failed", "error", err)
		res.Errors = append(res.Errors, "pull: "+err.Error())
		return
	}
	for _, rec := range recs {
		if !s.signedIn(owner) {
			res.SignedOut = true
			return
		}
		if rec.OwnerID != owner {
			continue
		}
		written, err := s.store.UpsertFromRemote(ctx, rec)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("pull %s: %s", rec.ID, err))
			continue
		}
		if written {
			res.Pulled++
		}
	}
}

// signedIn reports whether owner is still the signed-in owner.
func (s *Service) signedIn(owner string) bool {
	id, ok := s.owners.OwnerID()
	return ok && id == owner
}

// abandon ends a cycle whose owner signed out while it ran. Anything pulled
// after the sign-out purge is removed again.
func (s *Service) abandon(ctx context.Context, owner string, res Result, err error) (Result, error) {
	res.SignedOut = true
	s.logger.Info(ctx, "owner signed out during cycle, dropping its data", "trigger", res.Trigger)
	if perr := s.store.PurgeOwner(ctx, owner); perr != nil {
		err = errors.Join(err, perr)
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	s.setPhase(PhaseIdle, &res)
	return res, err
}

func (s *Service) setPhase(p Phase, r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	if r != nil {
		c := *r
		s.last = &c
	}
}

func (s *Service) recordLastSync(ctx context.Context, at time.Time) {
	s.mu.Lock()
	s.lastSyncAt = at
	s.mu.Unlock()

	if s.opts.Metadata == nil {
		return
	}
	if err := s.opts.Metadata.SetTime(ctx, metadata.KeyLastSyncAt, at); err != nil {
		s.logger.Warn(ctx, "failed to record last sync time", "error", err)
	}
}

// Status reports the current phase, the last result and the local backlog.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	st := Status{Phase: s.phase, LastSyncAt: s.lastSyncAt}
	if s.last != nil {
		c := *s.last
		st.LastResult = &c
	}
	s.mu.RUnlock()
	st.Online = s.online.Load()

	if st.LastSyncAt.IsZero() && s.opts.Metadata != nil {
		if at, err := s.opts.Metadata.GetTime(ctx, metadata.KeyLastSyncAt); err == nil {
			st.LastSyncAt = at
		}
	}

	owner, ok := s.owners.OwnerID()
	if !ok {
		return st
	}
	if n, err := s.store.CountUnsynced(ctx, owner); err == nil {
		st.Unsynced = n
	} else {
		s.logger.Warn(ctx, "failed to count unsynced records", "error", err)
	}
	if n, err := s.store.PendingCount(ctx, owner); err == nil {
		st.Pending = n
	} else {
		s.logger.Warn(ctx, "failed to count queued changes", "error", err)
	}
	return st
}

// Online reports the last known reachability.
func (s *Service) Online() bool {
	return s.online.Load()
}

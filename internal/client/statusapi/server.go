// Package statusapi is a small local HTTP API a UI shell can poll for sync
// status and use to trigger a cycle or maintain the outbound queue.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/auth"
	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/dmitrijs2005/spendsync/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Syncer is the sync service surface the API exposes.
type Syncer interface {
	Status(ctx context.Context) syncer.Status
	RunCycle(ctx context.Context, trigger syncer.Trigger) (syncer.Result, error)
}

// Queue exposes queue maintenance.
type Queue interface {
	StuckEntries(ctx context.Context, ownerID string) ([]models.SyncQueueEntry, error)
	PurgeStuck(ctx context.Context, ownerID string) (int64, error)
	RetryStuck(ctx context.Context, ownerID string) (int64, error)
}

type Server struct {
	addr   string
	sync   Syncer
	queue  Queue
	owners auth.OwnerProvider
	logger logging.Logger
	router chi.Router
}

func NewServer(addr string, s Syncer, q Queue, owners auth.OwnerProvider, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	srv := &Server{
		addr:   addr,
		sync:   s,
		queue:  q,
		owners: owners,
		logger: logger.With("module", "statusapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(srv.logger))

	r.Get("/status", srv.handleStatus)
	r.Post("/sync", srv.handleSync)
	r.Route("/queue", func(r chi.Router) {
		r.Get("/stuck", srv.handleStuck)
		r.Post("/purge", srv.handlePurge)
		r.Post("/retry", srv.handleRetry)
	})
	srv.router = r
	return srv
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "status API listening", "addr", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// entryView renders the JSON payload inline instead of base64.
type entryView struct {
	SequenceID int64            `json:"sequence_id"`
	RecordID   string           `json:"record_id"`
	Operation  models.Operation `json:"operation"`
	Payload    json.RawMessage  `json:"payload"`
	CreatedAt  time.Time        `json:"created_at"`
	RetryCount int              `json:"retry_count"`
	LastError  *string          `json:"last_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status(r.Context()))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.sync.RunCycle(r.Context(), syncer.TriggerManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStuck(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owners.OwnerID()
	if !ok {
		s.writeError(w, r, common.ErrNoOwner)
		return
	}
	entries, err := s.queue.StuckEntries(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		payload := json.RawMessage(e.Payload)
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		views = append(views, entryView{
			SequenceID: e.SequenceID,
			RecordID:   e.RecordID,
			Operation:  e.Operation,
			Payload:    payload,
			CreatedAt:  e.CreatedAt,
			RetryCount: e.RetryCount,
			LastError:  e.LastError,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	s.maintain(w, r, "removed", s.queue.PurgeStuck)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.maintain(w, r, "reset", s.queue.RetryStuck)
}

func (s *Server) maintain(w http.ResponseWriter, r *http.Request, key string,
	op func(ctx context.Context, ownerID string) (int64, error)) {
	owner, ok := s.owners.OwnerID()
	if !ok {
		s.writeError(w, r, common.ErrNoOwner)
		return
	}
	n, err := op(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{key: n})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNoOwner), errors.Is(err, common.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/spendsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/spendsync/internal/logging"
)

// OwnerProvider exposes the signed-in owner.
type OwnerProvider interface {
	OwnerID() (string, bool)
}

// Purger removes an owner's local data.
type Purger interface {
	PurgeOwner(ctx context.Context, ownerID string) error
}

// Session holds the current owner and persists the token in metadata so a
// restart keeps the user signed in.
type Session struct {
	mu     sync.RWMutex
	owner  string
	secret []byte
	meta   metadata.Repository
	purger Purger
	logger logging.Logger
}

func NewSession(secret []byte, meta metadata.Repository, purger Purger, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{secret: secret, meta: meta, purger: purger, logger: logger.With("module", "auth")}
}

func (s *Session) OwnerID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.owner != ""
}

// Restore signs in with the persisted token, if any. An invalid or expired
// token is dropped; the local data stays until an explicit SignOut.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	token, err := s.meta.GetString(ctx, metadata.KeySessionToken)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if token == "" {
		return false, nil
	}

	owner, err := ParseToken(token, s.secret)
	if err != nil {
		s.logger.Warn(ctx, "stored session rejected", "error", err)
		if err := s.meta.Delete(ctx, metadata.KeySessionToken); err != nil {
			return false, fmt.Errorf("drop session: %w", err)
		}
		return false, nil
	}

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()
	return true, nil
}

// SignIn validates token and makes its subject the current owner. Signing in
// as someone else first signs the previous owner out.
func (s *Session) SignIn(ctx context.Context, token string) (string, error) {
	owner, err := ParseToken(token, s.secret)
	if err != nil {
		return "", err
	}

	if prev, ok := s.OwnerID(); ok && prev != owner {
		if err := s.SignOut(ctx); err != nil {
			return "", err
		}
	}

	if err := s.meta.SetString(ctx, metadata.KeySessionToken, token); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	if err := s.meta.SetString(ctx, metadata.KeyOwnerID, owner); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()

	s.logger.Info(ctx, "signed in", "owner_id", owner)
	return owner, nil
}

// SignOut forgets the owner, then purges its records and queue. The owner
// is cleared first so a sync cycle in flight stops writing for it; on
// failure the session is restored.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	owner := s.owner
	s.owner = ""
	s.mu.Unlock()
	if owner == "" {
		return nil
	}

	err := s.purger.PurgeOwner(ctx, owner)
	if err == nil {
		err = errors.Join(
			s.meta.Delete(ctx, metadata.KeySessionToken),
			s.meta.Delete(ctx, metadata.KeyOwnerID),
			s.meta.Delete(ctx, metadata.KeyLastSyncAt),
		)
	}
	if err != nil {
		s.mu.Lock()
		if s.owner == "" {
			s.owner = owner
		}
		s.mu.Unlock()
		return fmt.Errorf("sign out: %w", err)
	}

	s.logger.Info(ctx, "signed out", "owner_id", owner)
	return nil
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/shopspring/decimal"
)

// SyncState tells whether the local copy of a record matches the remote one.
type SyncState string

const (
	SyncStateUnsynced SyncState = "unsynced"
	SyncStateSynced   SyncState = "synced"
)

// ExpenseRecord is the canonical unit of data, keyed by a client-generated
// UUID that is also used as the remote primary key.
type ExpenseRecord struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Notes         *string         `json:"notes,omitempty"`
	AttachmentRef *string         `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	SyncState     SyncState       `json:"sync_state"`
	LastSyncError *string         `json:"last_sync_error,omitempty"`
	LastSyncedAt  *time.Time      `json:"last_synced_at,omitempty"`
}

// Clone returns a deep copy so callers can't alias optional fields.
func (r ExpenseRecord) Clone() ExpenseRecord {
	c := r
	c.Notes = cloneString(r.Notes)
	c.AttachmentRef = cloneString(r.AttachmentRef)
	c.LastSyncError = cloneString(r.LastSyncError)
	if r.LastSyncedAt != nil {
		t := *r.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return c
}

// ExpenseData is the user input for a new record.
type ExpenseData struct {
	Amount        decimal.Decimal
	Category      string
	OccurredAt    time.Time
	Notes         *string
	AttachmentRef *string
}

// Validate checks the fields every stored record must satisfy.
func (d ExpenseData) Validate() error {
	if strings.TrimSpace(d.Category) == "" {
		return fmt.Errorf("category is required: %w", common.ErrValidation)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative: %w", common.ErrValidation)
	}
	if d.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required: %w", common.ErrValidation)
	}
	return nil
}

// ExpensePatch is a partial update; nil fields are left untouched.
type ExpensePatch struct {
	Amount        *decimal.Decimal
	Category      *string
	OccurredAt    *time.Time
	Notes         *string
	AttachmentRef *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.OccurredAt == nil &&
		p.Notes == nil && p.AttachmentRef == nil
}

// Apply writes the provided fields onto r and validates the result.
func (p ExpensePatch) Apply(r *ExpenseRecord) error {
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.OccurredAt != nil {
		r.OccurredAt = *p.OccurredAt
	}
	if p.Notes != nil {
		r.Notes = cloneString(p.Notes)
	}
	if p.AttachmentRef != nil {
		r.AttachmentRef = cloneString(p.AttachmentRef)
	}
	return ExpenseData{
		Amount:     r.Amount,
		Category:   r.Category,
		OccurredAt: r.OccurredAt,
	}.Validate()
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/services"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// receiptLinkTTL bounds how long a printed receipt link stays valid.
const receiptLinkTTL = 15 * time.Minute

// Add prompts for a new expense and stores it locally.
func (a *App) Add(ctx context.Context) error {
	data, err := a.readExpense()
	if err != nil {
		return err
	}
	rec, err := a.expenses.Add(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s\n", rec.ID)
	return nil
}

// AddRemote writes the expense to the remote store before keeping it,
// showing a placeholder in the meantime.
func (a *App) AddRemote(ctx context.Context) error {
	data, err := a.readExpense()
	if err != nil {
		return err
	}
	m := a.expenses.AddRemoteFirst(ctx, data)
	if m.Status == services.MutationRolledBack {
		return fmt.Errorf("rolled back: %w", m.Reason)
	}
	fmt.Fprintf(a.out, "Added %s\n", m.Record.ID)
	return nil
}

// List reloads the records and prints them newest first. Rows marked with
// '*' have changes the remote has not seen yet.
func (a *App) List(ctx context.Context) error {
	recs, err := a.expenses.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No expenses")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDATE\tAMOUNT\tCATEGORY\tNOTES")
	for _, r := range recs {
		mark := ""
		if r.SyncState == models.SyncStateUnsynced {
			mark = "*"
		}
		notes := ""
		if r.Notes != nil {
			notes = firstLine(*r.Notes)
		}
		if r.AttachmentRef != nil {
			notes = strings.TrimSpace(notes + " [receipt]")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, r.ID, r.OccurredAt.Local().Format(dateLayout), r.Amount.StringFixed(2), r.Category, notes)
	}
	return tw.Flush()
}

// Edit prompts for each field; an empty answer keeps the current value.
func (a *App) Edit(ctx context.Context, id string) error {
	rec, err := a.findRecord(id)
	if err != nil {
		return err
	}

	var patch models.ExpensePatch

	s, err := getSimpleText(a.reader, fmt.Sprintf("Amount [%s]", rec.Amount.StringFixed(2)), a.out)
	if err != nil {
		return err
	}
	if s != "" {
		amt, err := parseAmount(s)
		if err != nil {
			return err
		}
		patch.Amount = &amt
	}

	s, err = getSimpleText(a.reader, fmt.Sprintf("Category [%s]", rec.Category), a.out)
	if err != nil {
		return err
	}
	if s != "" {
		patch.Category = &s
	}

	s, err = getSimpleText(a.reader, fmt.Sprintf("Date [%s]", rec.OccurredAt.Local().Format(dateLayout)), a.out)
	if err != nil {
		return err
	}
	if s != "" {
		at, err := parseDate(s, a.now())
		if err != nil {
			return err
		}
		patch.OccurredAt = &at
	}

	s, err = getSimpleText(a.reader, "Notes (empty keeps, '-' clears)", a.out)
	if err != nil {
		return err
	}
	switch s {
	case "":
	case "-":
		empty := ""
		patch.Notes = &empty
	default:
		patch.Notes = &s
	}

	if patch.IsEmpty() {
		fmt.Fprintln(a.out, "Nothing to change")
		return nil
	}
	if _, err := a.expenses.Update(ctx, rec.ID, patch); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s\n", rec.ID)
	return nil
}

// Delete removes a record locally and queues the remote delete.
func (a *App) Delete(ctx context.Context, id string) error {
	if id == "" {
		var err error
		if id, err = getSimpleText(a.reader, "Enter record id to delete", a.out); err != nil {
			return err
		}
	}
	if err := a.expenses.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

// Attach uploads a receipt file and links it to the record.
func (a *App) Attach(ctx context.Context, id, path string) error {
	if a.files == nil {
		return errNoAttachments
	}
	rec, err := a.findRecord(id)
	if err != nil {
		return err
	}
	if path == "" {
		if path, err = getSimpleText(a.reader, "Enter file path", a.out); err != nil {
			return err
		}
	}

	ref, err := a.files.Upload(ctx, rec.OwnerID, path)
	if err != nil {
		return err
	}
	if _, err := a.expenses.Update(ctx, rec.ID, models.ExpensePatch{AttachmentRef: &ref}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Attached %s\n", ref)
	return nil
}

// Receipt prints a temporary download link for the record's attachment.
func (a *App) Receipt(ctx context.Context, id string) error {
	if a.files == nil {
		return errNoAttachments
	}
	rec, err := a.findRecord(id)
	if err != nil {
		return err
	}
	if rec.AttachmentRef == nil || *rec.AttachmentRef == "" {
		return errors.New("no receipt attached")
	}
	url, err := a.files.PresignGet(ctx, *rec.AttachmentRef, receiptLinkTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, url)
	return nil
}

func (a *App) readExpense() (models.ExpenseData, error) {
	var data models.ExpenseData

	s, err := getSimpleText(a.reader, "Amount", a.out)
	if err != nil {
		return data, err
	}
	if data.Amount, err = parseAmount(s); err != nil {
		return data, err
	}

	if data.Category, err = getSimpleText(a.reader, "Category", a.out); err != nil {
		return data, err
	}

	s, err = getSimpleText(a.reader, "Date (YYYY-MM-DD, empty for today)", a.out)
	if err != nil {
		return data, err
	}
	if data.OccurredAt, err = parseDate(s, a.now()); err != nil {
		return data, err
	}

	notes, err := getMultiline(a.reader, "Notes (optional)", a.out)
	if err != nil {
		return data, err
	}
	if notes != "" {
		data.Notes = &notes
	}
	return data, data.Validate()
}

// findRecord resolves id, or a unique id prefix, against the current view.
func (a *App) findRecord(id string) (models.ExpenseRecord, error) {
	if id == "" {
		var err error
		if id, err = getSimpleText(a.reader, "Enter record id", a.out); err != nil {
			return models.ExpenseRecord{}, err
		}
	}

	var found []models.ExpenseRecord
	for _, r := range a.expenses.Snapshot() {
		if r.ID == id {
			return r, nil
		}
		if strings.HasPrefix(r.ID, id) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return models.ExpenseRecord{}, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return models.ExpenseRecord{}, fmt.Errorf("id prefix %q is ambiguous", id)
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, common.ErrValidation)
	}
	return d, nil
}

// parseDate accepts a calendar date in local time or a full RFC 3339
// timestamp; an empty string means now.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: %w", s, common.ErrValidation)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "…"
	}
	return s
}

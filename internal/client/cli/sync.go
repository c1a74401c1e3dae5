package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
	"github.com/dmitrijs2005/spendsync/internal/common"
)

// Sync runs a cycle now and prints what it did.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.syncer.RunCycle(ctx, syncer.TriggerManual)
	if err != nil {
		return err
	}
	printResult(a.out, res)
	if res.Pulled > 0 {
		_, err = a.expenses.List(ctx)
	}
	return err
}

func (a *App) Status(ctx context.Context) error {
	st := a.syncer.Status(ctx)
	conn := "offline"
	if st.Online {
		conn = "online"
	}
	fmt.Fprintf(a.out, "Sync: %s, %s\n", st.Phase, conn)
	fmt.Fprintf(a.out, "Unsynced records: %d, queued changes: %d\n", st.Unsynced, st.Pending)
	if !st.LastSyncAt.IsZero() {
		fmt.Fprintf(a.out, "Last sync: %s\n", st.LastSyncAt.Local().Format(time.DateTime))
	}
	if st.LastResult != nil {
		printResult(a.out, *st.LastResult)
	}
	return nil
}

// Stuck lists queued changes that reached the retry ceiling.
func (a *App) Stuck(ctx context.Context) error {
	owner, ok := a.session.OwnerID()
	if !ok {
		return common.ErrNoOwner
	}
	entries, err := a.queue.StuckEntries(ctx, owner)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No stuck changes")
		return nil
	}
	for _, e := range entries {
		msg := ""
		if e.LastError != nil {
			msg = *e.LastError
		}
		fmt.Fprintf(a.out, "#%d %s %s (%d attempts): %s\n", e.SequenceID, e.Operation, e.RecordID, e.RetryCount, msg)
	}
	return nil
}

// Purge drops stuck changes for good.
func (a *App) Purge(ctx context.Context) error {
	owner, ok := a.session.OwnerID()
	if !ok {
		return common.ErrNoOwner
	}
	n, err := a.queue.PurgeStuck(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %d stuck changes\n", n)
	return nil
}

// Retry resets stuck changes so the next cycle picks them up again.
func (a *App) Retry(ctx context.Context) error {
	owner, ok := a.session.OwnerID()
	if !ok {
		return common.ErrNoOwner
	}
	n, err := a.queue.RetryStuck(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Reset %d stuck changes\n", n)
	return nil
}

// resume runs before every command. Input after a pause of idleAfter or
// more counts as returning to the foreground and schedules a background
// cycle; its outcome shows up in the status and the refreshed list.
func (a *App) resume(ctx context.Context) {
	now := a.now()
	idle := now.Sub(a.lastInput)
	a.lastInput = now
	if idle < a.idleAfter || !a.isLoggedIn() {
		return
	}
	a.logger.Debug(ctx, "input after idle period, syncing", "idle", idle.String())
	a.syncer.OnForeground(ctx)
}

func printResult(w io.Writer, r syncer.Result) {
	switch {
	case r.Offline:
		fmt.Fprintln(w, "Offline, changes stay queued")
		return
	case r.Coalesced:
		fmt.Fprintln(w, "A sync is already running")
		return
	case r.SignedOut:
		fmt.Fprintln(w, "Signed out during sync, nothing kept")
		return
	}
	fmt.Fprintf(w, "Pushed %d, pulled %d, failed %d, deferred %d\n", r.Pushed, r.Pulled, r.Failed, r.Deferred)
	for _, e := range r.Errors {
		fmt.Fprintln(w, "  ", e)
	}
}

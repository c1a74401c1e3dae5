package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
)

// Input helpers are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getMultiline  = GetMultiline
	getSecret     = GetSecret
)

// Login asks for an access token, signs in and runs a first sync cycle so
// the owner's records are pulled before the first list.
func (a *App) Login(ctx context.Context) error {
	token, err := getSecret("Enter access token", a.out)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty token")
	}

	owner, err := a.session.SignIn(ctx, token)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", owner)

	res, err := a.syncer.RunCycle(ctx, syncer.TriggerStartup)
	if err != nil {
		a.logger.Warn(ctx, "initial sync failed", "error", err)
	} else {
		printResult(a.out, res)
	}
	_, err = a.expenses.List(ctx)
	return err
}

// Logout signs out and removes the owner's local data.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

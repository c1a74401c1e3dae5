// Package cli provides the interactive spendsync command-line client.
//
// The REPL reads one command per line and dispatches it to App. Typical
// flow: sign in with an access token, add or edit expenses while offline
// or online, and let the background sync service reconcile with the
// remote store.
//
// Commands:
//   - login / logout
//   - add, add-remote, list, edit, delete
//   - attach, receipt (when an attachment bucket is configured)
//   - sync, status, stuck, purge, retry
//
// The REPL is started via App.Run(ctx), which blocks until the user exits
// or input ends.
package cli

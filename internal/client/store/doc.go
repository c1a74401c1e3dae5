// Package store is the local durable store: the on-device source of truth
// for expense records and the outbound sync queue.
//
// Every mutation runs under a single-writer lock and, when it touches more
// than one row, inside one SQL transaction, so callers never observe a record
// without its queue entry or the reverse. Local edits always enqueue an
// outbound intent; writes coming from a remote pull never do.
//
// Ordering of a delete is deliberate: the delete intent is committed before
// the row is removed, so an interruption between the two leaves a durable
// intent that the next sync cycle still replays.
package store

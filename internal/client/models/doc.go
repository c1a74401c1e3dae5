// Package models defines the client-side data model: expense records and
// the outbound sync queue entries that reference them.
package models

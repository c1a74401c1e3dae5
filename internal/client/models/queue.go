package models

import "time"

// Operation is the kind of mutation a queue entry replays remotely.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// SyncQueueEntry is one pending mutation intent. Payload holds a JSON
// snapshot of the record taken when the entry was enqueued.
type SyncQueueEntry struct {
	SequenceID int64
	RecordID   string
	OwnerID    string
	Operation  Operation
	Payload    []byte
	CreatedAt  time.Time
	RetryCount int
	LastError  *string
}

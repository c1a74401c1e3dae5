package syncer

import "time"

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup    Trigger = "startup"
	TriggerReconnect  Trigger = "reconnect"
	TriggerForeground Trigger = "foreground"
	TriggerManual     Trigger = "manual"
	TriggerInterval   Trigger = "interval"
)

// Phase is the published sync status.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Result summarizes one cycle.
type Result struct {
	Trigger    Trigger   `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Offline cycles and coalesced triggers do no work.
	Offline   bool `json:"offline,omitempty"`
	Coalesced bool `json:"coalesced,omitempty"`
	// SignedOut marks a cycle cut short because its owner signed out.
	SignedOut bool `json:"signed_out,omitempty"`

	Pushed int `json:"pushed"`
	Pulled int `json:"pulled"`
	Failed int `json:"failed"`
	// Deferred counts entries held back because an earlier entry of the
	// same record failed in this cycle.
	Deferred int      `json:"deferred"`
	Errors   []string `json:"errors,omitempty"`
}

// OK reports a cycle that did its work without failures.
func (r Result) OK() bool {
	return !r.Offline && !r.Coalesced && !r.SignedOut && r.Failed == 0 && len(r.Errors) == 0
}

// Status is what the UI polls.
type Status struct {
	Phase      Phase     `json:"phase"`
	Online     bool      `json:"online"`
	Unsynced   int       `json:"unsynced"`
	Pending    int       `json:"pending"`
	LastResult *Result   `json:"last_result,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at,omitzero"`
}

// Package connectivity decides whether the remote backend is reachable and
// reports offline/online transitions.
package connectivity

import (
	"context"
	"time"
)

// Checker answers a single reachability probe.
type Checker interface {
	Online(ctx context.Context) bool
}

// Pinger is satisfied by the remote adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteChecker treats a successful Ping as online.
type RemoteChecker struct {
	pinger  Pinger
	timeout time.Duration
}

func NewRemoteChecker(p Pinger, timeout time.Duration) *RemoteChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteChecker{pinger: p, timeout: timeout}
}

func (c *RemoteChecker) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.pinger.Ping(ctx) == nil
}

// Any is online when at least one of its checkers is.
type Any []Checker

func (a Any) Online(ctx context.Context) bool {
	for _, c := range a {
		if c != nil && c.Online(ctx) {
			return true
		}
	}
	return false
}

// Static always reports the same answer.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }

package jobs

import (
	"context"
	"time"

	"github.com/sheetsmith/sheetsmith-engine/pkg/metrics"
)

// Sweeper drops idle sessions.
type Sweeper interface {
	Sweep(ttl time.Duration) int
}

// SessionSweepJob evicts chat sessions idle for longer than ttl.
type SessionSweepJob struct {
	sessions Sweeper
	ttl      time.Duration
}

// NewSessionSweepJob creates the idle-session sweeper.
func NewSessionSweepJob(sessions Sweeper, ttl time.Duration) *SessionSweepJob {
	return &SessionSweepJob{sessions: sessions, ttl: ttl}
}

// Run sweeps once.
func (j *SessionSweepJob) Run(_ context.Context) {
	metrics.AddSessionsSwept(j.sessions.Sweep(j.ttl))
}

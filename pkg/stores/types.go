package stores

import (
	"context"
	"time"
)

// Transition is a recorded change of the API state.
type Transition struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	IssueRatio float64   `json:"issue_ratio"`
	At         time.Time `json:"at"`
}

// Attempt is a recorded endpoint fetch attempt.
type Attempt struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Number   int           `json:"number"`
	Bulk     bool          `json:"bulk"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    *string       `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// Failed reports whether the attempt did not succeed.
func (a *Attempt) Failed() bool { return a.Outcome != "success" }

// AttemptFilter narrows ListAttempts. Zero fields match everything.
type AttemptFilter struct {
	Path  string
	Since time.Time
	Limit int
}

// PathStats summarizes the attempts made against one endpoint path.
type PathStats struct {
	Path     string    `json:"path"`
	Attempts int       `json:"attempts"`
	Failures int       `json:"failures"`
	LastAt   time.Time `json:"last_at"`
}

// Store records coordinator history.
type Store interface {
	RecordTransition(ctx context.Context, t *Transition) error
	ListTransitions(ctx context.Context, limit, offset int) ([]*Transition, error)

	RecordAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]*Attempt, error)
	AttemptStats(ctx context.Context) ([]*PathStats, error)

	// Prune deletes history older than before and returns the number of
	// rows removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

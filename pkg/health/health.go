// Package health classifies the aggregate health of the remote side from the
// outcomes of recent fetch attempts.
//
// Outcomes are kept in a bounded FIFO window. Each new outcome, and every
// expiry of old outcomes by the decay timer, reclassifies the window:
//
//   - fewer outcomes than the meaningful-request cutoff: Unknown
//   - newest outcome is a rate limit: RateLimited
//   - share of failed outcomes above the reliable cutoff: Unreliable
//   - otherwise: Reliable
//
// Subscribers are notified once per state change.
package health

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// State is the classified health of the remote side.
type State string

const (
	// StateUnknown means there is not enough recent data.
	StateUnknown State = "unknown"

	// StateReliable means failures stay within the reliable cutoff.
	StateReliable State = "reliable"

	// StateUnreliable means failures exceed the reliable cutoff.
	StateUnreliable State = "unreliable"

	// StateRateLimited means the newest outcome was a rate limit.
	StateRateLimited State = "rate_limited"
)

// States returns every state in declaration order.
func States() []State {
	return []State{StateUnknown, StateReliable, StateUnreliable, StateRateLimited}
}

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StateUnknown, StateReliable, StateUnreliable, StateRateLimited:
		return nil
	default:
		return fmt.Errorf("invalid api state: %s", s)
	}
}

// Outcome is the result of one fetch attempt.
type Outcome string

const (
	// OutcomeSuccess is a fetch that returned a value.
	OutcomeSuccess Outcome = "success"
	// OutcomeRateLimit is a fetch rejected for exceeding the request quota.
	// The state turns rate_limited while it is the newest outcome.
	OutcomeRateLimit Outcome = "rate_limit"
	// OutcomeServerError is a fetch that failed on the remote side.
	OutcomeServerError Outcome = "server_error"
	// OutcomeServiceUnavailable is a fetch refused because the remote side
	// was down or in maintenance.
	OutcomeServiceUnavailable Outcome = "service_unavailable"
)

// IsIssue reports whether the outcome counts as a failure.
func (o Outcome) IsIssue() bool { return o != OutcomeSuccess }

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeSuccess, OutcomeRateLimit, OutcomeServerError, OutcomeServiceUnavailable:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// OutcomeFor maps a recoverable transport kind to an outcome. The second
// result is false for kinds the tracker does not record.
func OutcomeFor(kind errdefs.TransportKind) (Outcome, bool) {
	switch kind {
	case errdefs.KindRateLimit:
		return OutcomeRateLimit, true
	case errdefs.KindServerError:
		return OutcomeServerError, true
	case errdefs.KindServiceUnavailable:
		return OutcomeServiceUnavailable, true
	}
	return "", false
}

// epsilon absorbs floating point noise in ratio comparisons.
const epsilon = 0.0001

// Settings configure a Tracker.
type Settings struct {
	// WindowSize is the number of outcomes kept.
	WindowSize int `yaml:"window_size" json:"window_size" validate:"min=1"`

	// ReliableCutoff is the largest failure ratio still considered reliable.
	ReliableCutoff float64 `yaml:"reliable_cutoff" json:"reliable_cutoff" validate:"gte=0,lte=1"`

	// IssueDecay is how long an outcome stays in the window.
	IssueDecay time.Duration `yaml:"issue_decay" json:"issue_decay" validate:"gt=0"`

	// MeaningfulRequestCutoff is the fill ratio below which the state is Unknown.
	MeaningfulRequestCutoff float64 `yaml:"meaningful_request_cutoff" json:"meaningful_request_cutoff" validate:"gte=0,lte=1"`
}

// DefaultSettings returns the default tracker settings.
func DefaultSettings() Settings {
	return Settings{
		WindowSize:              20,
		ReliableCutoff:          0.1,
		IssueDecay:              5 * time.Minute,
		MeaningfulRequestCutoff: 0.25,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return errdefs.NewConfigurationError("invalid health settings", err).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}
	return nil
}

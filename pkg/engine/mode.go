package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// ResolveMode selects how an engine reacts to failed fetches.
type ResolveMode string

const (
	// ModeNone makes one attempt; any failure propagates.
	ModeNone ResolveMode = "none"

	// ModeRetry makes up to RetryAmount attempts and propagates the last failure.
	ModeRetry ResolveMode = "retry"

	// ModeRetryOrUsePrevious retries like ModeRetry, then serves the cached
	// value if every attempt failed recoverably.
	ModeRetryOrUsePrevious ResolveMode = "retry_or_use_previous"

	// ModeUsePrevious makes one attempt and serves the cached value on a
	// recoverable failure.
	ModeUsePrevious ResolveMode = "use_previous"
)

// ParseResolveMode parses a mode name. Dashes and case are ignored so that
// "RetryOrUsePrevious" and "retry-or-use-previous" both work.
func ParseResolveMode(s string) (ResolveMode, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s))
	for _, m := range []ResolveMode{ModeNone, ModeRetry, ModeRetryOrUsePrevious, ModeUsePrevious} {
		if strings.ReplaceAll(string(m), "_", "") == norm {
			return m, nil
		}
	}
	return "", errdefs.NewConfigurationError(fmt.Sprintf("unknown resolve mode %q", s), nil).
		WithCode(errdefs.ErrCodeInvalidSettings)
}

// String returns the mode name.
func (m ResolveMode) String() string { return string(m) }

// Validate checks if the mode is valid.
func (m ResolveMode) Validate() error {
	switch m {
	case ModeNone, ModeRetry, ModeRetryOrUsePrevious, ModeUsePrevious:
		return nil
	default:
		return fmt.Errorf("invalid resolve mode: %s", m)
	}
}

// retries reports whether the mode makes more than one attempt.
func (m ResolveMode) retries() bool {
	return m == ModeRetry || m == ModeRetryOrUsePrevious
}

// fallsBack reports whether the mode may serve the cached value on failure.
func (m ResolveMode) fallsBack() bool {
	return m == ModeRetryOrUsePrevious || m == ModeUsePrevious
}

// Policy is the resolve mode together with its retry parameters.
type Policy struct {
	Mode        ResolveMode   `yaml:"mode" json:"mode"`
	RetryAmount int           `yaml:"retry_amount" json:"retry_amount"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DefaultPolicy retries three times, five seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		Mode:        ModeRetry,
		RetryAmount: 3,
		RetryDelay:  5 * time.Second,
	}
}

// Retry returns a ModeRetry policy.
func Retry(amount int, delay time.Duration) Policy {
	return Policy{Mode: ModeRetry, RetryAmount: amount, RetryDelay: delay}
}

// RetryOrUsePrevious returns a ModeRetryOrUsePrevious policy.
func RetryOrUsePrevious(amount int, delay time.Duration) Policy {
	return Policy{Mode: ModeRetryOrUsePrevious, RetryAmount: amount, RetryDelay: delay}
}

// Validate checks the policy. Retry parameters are only checked for the
// retrying modes.
func (p Policy) Validate() error {
	if err := p.Mode.Validate(); err != nil {
		return errdefs.NewConfigurationError("invalid resolve policy", err).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}
	if !p.Mode.retries() {
		return nil
	}
	if p.RetryAmount < 1 {
		return errdefs.NewConfigurationError(
			fmt.Sprintf("retry amount must be at least 1, got %d", p.RetryAmount), nil).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}
	if p.RetryDelay < 0 {
		return errdefs.NewConfigurationError(
			fmt.Sprintf("retry delay must not be negative, got %s", p.RetryDelay), nil).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}
	return nil
}

// Attempts returns the number of fetch attempts the policy allows.
func (p Policy) Attempts() int {
	if p.Mode.retries() {
		return p.RetryAmount
	}
	return 1
}

func (p Policy) String() string {
	if p.Mode.retries() {
		return fmt.Sprintf("%s(%d, %s)", p.Mode, p.RetryAmount, p.RetryDelay)
	}
	return p.Mode.String()
}

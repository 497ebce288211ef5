package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pathq/pkg/clock"
	"github.com/openfroyo/pathq/pkg/errdefs"
)

type record struct {
	outcome Outcome
	at      time.Time
}

// Tracker holds the outcome window and the current state. It is safe for
// concurrent use. Window, state and timer share one mutex that is never held
// while subscribers run.
type Tracker struct {
	settings Settings
	clock    clock.Clock
	logger   zerolog.Logger

	mu         sync.Mutex
	window     []record
	state      State
	lastChange time.Time
	timer      clock.Timer
	timerGen   uint64
	subs       map[uint64]func(State)
	nextSub    uint64
	closed     bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for timestamps and the decay timer.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker in the Unknown state.
func NewTracker(settings Settings, opts ...Option) (*Tracker, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		settings: settings,
		clock:    clock.Real{},
		logger:   zerolog.Nop(),
		state:    StateUnknown,
		subs:     make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "health").Logger()
	return t, nil
}

// Settings returns the tracker settings.
func (t *Tracker) Settings() Settings { return t.settings }

// Record adds an outcome and reclassifies.
func (t *Tracker) Record(o Outcome) error {
	if err := o.Validate(); err != nil {
		return errdefs.NewInternalError("cannot record outcome", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errdefs.ErrDisposed
	}

	if len(t.window) >= t.settings.WindowSize {
		t.window = t.window[1:]
	}
	t.window = append(t.window, record{outcome: o, at: t.clock.Now()})
	t.rearm()

	notify := t.classify()
	t.mu.Unlock()

	notify()
	return nil
}

// RecordError records the outcome matching a recoverable transport error.
// Other errors are ignored.
func (t *Tracker) RecordError(err error) error {
	kind, ok := errdefs.TransportKindOf(err)
	if !ok {
		return nil
	}
	o, ok := OutcomeFor(kind)
	if !ok {
		return nil
	}
	return t.Record(o)
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastStateChange returns when the state last changed, or the zero time.
func (t *Tracker) LastStateChange() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastChange
}

// Len returns the number of outcomes in the window.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window)
}

// DataRatio returns the window fill ratio.
func (t *Tracker) DataRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dataRatio()
}

// IssueRatio returns the share of failures relative to the window size.
func (t *Tracker) IssueRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issueRatio()
}

// Subscribe registers fn for state changes and returns a function removing it.
func (t *Tracker) Subscribe(fn func(State)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Close stops the decay timer, clears the window and drops subscribers.
// It is safe to call more than once.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.stopTimer()
	t.window = nil
	t.subs = nil
	return nil
}

func (t *Tracker) dataRatio() float64 {
	return float64(len(t.window)) / float64(t.settings.WindowSize)
}

func (t *Tracker) issueRatio() float64 {
	issues := 0
	for _, r := range t.window {
		if r.outcome.IsIssue() {
			issues++
		}
	}
	return float64(issues) / float64(t.settings.WindowSize)
}

// classify updates the state from the window. It returns a function that
// notifies subscribers and must be called after the mutex is released.
func (t *Tracker) classify() func() {
	var next State
	switch {
	case len(t.window) == 0, t.dataRatio()-t.settings.MeaningfulRequestCutoff < -epsilon:
		next = StateUnknown
	case t.window[len(t.window)-1].outcome == OutcomeRateLimit:
		next = StateRateLimited
	case t.issueRatio()-t.settings.ReliableCutoff > epsilon:
		next = StateUnreliable
	default:
		next = StateReliable
	}

	if next == t.state {
		return func() {}
	}

	prev := t.state
	t.state = next
	t.lastChange = t.clock.Now()

	t.logger.Info().
		Str("from", string(prev)).
		Str("to", string(next)).
		Int("window", len(t.window)).
		Float64("issue_ratio", t.issueRatio()).
		Msg("API state changed")

	subs := make([]func(State), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(next)
		}
	}
}

// rearm schedules the decay timer for the oldest outcome, or disarms it when
// the window is empty.
func (t *Tracker) rearm() {
	t.stopTimer()
	if len(t.window) == 0 {
		return
	}

	d := t.window[0].at.Add(t.settings.IssueDecay).Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}
	gen := t.timerGen
	t.timer = t.clock.AfterFunc(d, func() { t.decay(gen) })
}

func (t *Tracker) stopTimer() {
	t.timerGen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// decay evicts expired outcomes. Callbacks from superseded timers are ignored.
func (t *Tracker) decay(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.timerGen {
		t.mu.Unlock()
		return
	}
	t.timer = nil

	now := t.clock.Now()
	expired := 0
	for len(t.window) > 0 && now.Sub(t.window[0].at) >= t.settings.IssueDecay {
		t.window = t.window[1:]
		expired++
	}
	t.rearm()

	notify := func() {}
	if expired > 0 {
		t.logger.Debug().Int("expired", expired).Int("window", len(t.window)).Msg("Outcomes expired")
		notify = t.classify()
	}
	t.mu.Unlock()

	notify()
}

package telemetry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event raised while resolving queries.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Path      string         `json:"path,omitempty"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeStateChanged  = "api.state_changed"
	EventTypeFetchFailed   = "fetch.failed"
	EventTypeFallbackUsed  = "fetch.fallback_used"
	EventTypeEngineCreated = "engine.created"
	EventTypeCacheCleared  = "cache.cleared"
)

// EventTypes returns every event type the publisher emits.
func EventTypes() []string {
	return []string{
		EventTypeStateChanged,
		EventTypeFetchFailed,
		EventTypeFallbackUsed,
		EventTypeEngineCreated,
		EventTypeCacheCleared,
	}
}

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. In synchronous mode the
// subscribers run on the publishing goroutine, in order of subscription.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers map[int]subscriberEntry
	nextID      int
	mu          sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	now         func() time.Time
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config:      cfg,
		subscribers: make(map[int]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = ep.now()
	}

	if ep.buffer != nil {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event %s dropped", event.ID)
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishStateChanged publishes an API health transition.
func (ep *EventPublisher) PublishStateChanged(oldState, newState string) error {
	level := EventLevelInfo
	if newState != "reliable" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeStateChanged,
		Source:  "health",
		Message: fmt.Sprintf("API state changed from %s to %s", oldState, newState),
		Level:   level,
		Data: map[string]any{
			"old_state": oldState,
			"new_state": newState,
		},
	})
}

// PublishFetchFailed publishes a failed fetch attempt for an endpoint.
func (ep *EventPublisher) PublishFetchFailed(path string, attempt int, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeFetchFailed,
		Source:  "engine",
		Path:    path,
		Message: fmt.Sprintf("Fetch of %s failed on attempt %d: %s", path, attempt, reason),
		Level:   EventLevelWarning,
		Data: map[string]any{
			"attempt": attempt,
			"reason":  reason,
		},
	})
}

// PublishFallbackUsed publishes that a failed refresh was answered from cache.
func (ep *EventPublisher) PublishFallbackUsed(path, mode string) error {
	return ep.Publish(Event{
		Type:    EventTypeFallbackUsed,
		Source:  "engine",
		Path:    path,
		Message: fmt.Sprintf("Serving previous value of %s (%s)", path, mode),
		Level:   EventLevelWarning,
		Data:    map[string]any{"mode": mode},
	})
}

// PublishEngineCreated publishes the registration of a new cache engine.
func (ep *EventPublisher) PublishEngineCreated(path string) error {
	return ep.Publish(Event{
		Type:    EventTypeEngineCreated,
		Source:  "coordinator",
		Path:    path,
		Message: fmt.Sprintf("Cache engine created for %s", path),
		Level:   EventLevelInfo,
	})
}

// PublishCacheCleared publishes a cache clear. An empty path means all engines.
func (ep *EventPublisher) PublishCacheCleared(path string) error {
	msg := "All cached values cleared"
	if path != "" {
		msg = fmt.Sprintf("Cached value of %s cleared", path)
	}
	return ep.Publish(Event{
		Type:    EventTypeCacheCleared,
		Source:  "coordinator",
		Path:    path,
		Message: msg,
		Level:   EventLevelInfo,
	})
}

// Subscribe adds an event subscriber and returns a function removing it.
// A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) func() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	id := ep.nextID
	ep.nextID++
	ep.subscribers[id] = subscriberEntry{subscriber: subscriber, filter: filter}

	var once sync.Once
	return func() {
		once.Do(func() {
			ep.mu.Lock()
			delete(ep.subscribers, id)
			ep.mu.Unlock()
		})
	}
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	ids := make([]int, 0, len(ep.subscribers))
	for id := range ep.subscribers {
		ids = append(ids, id)
	}
	entries := make([]subscriberEntry, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		entries = append(entries, ep.subscribers[id])
	}
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher, draining buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByPath creates a filter that only allows events for one endpoint path.
func FilterByPath(path string) EventFilter {
	return func(event Event) bool {
		return event.Path == path
	}
}

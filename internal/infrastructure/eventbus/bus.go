package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

// Subscriber is one attached consumer of a run's events. Its mailbox is
// bounded; a subscriber that stops draining loses events rather than
// stalling the publisher.
type Subscriber struct {
	runID  string
	events chan entity.RunEvent

	closeOnce sync.Once
}

// Events returns the subscriber's mailbox. The channel is closed on
// Unsubscribe or bus shutdown.
func (s *Subscriber) Events() <-chan entity.RunEvent {
	return s.events
}

// RunID returns the run this subscriber is attached to.
func (s *Subscriber) RunID() string {
	return s.runID
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

// Bus fans out run progress events to per-run subscriber sets.
// Delivery is best-effort: publishing never blocks, events are not buffered
// for late subscribers, and no history is kept.
type Bus struct {
	mu         sync.RWMutex
	topics     map[string]map[*Subscriber]struct{}
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// NewBus creates an event bus. bufferSize is the per-subscriber mailbox
// capacity (default 256).
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		topics:     make(map[string]map[*Subscriber]struct{}),
		bufferSize: bufferSize,
		logger:     logger.With(zap.String("component", "eventbus")),
	}
}

// Subscribe attaches a new subscriber to a run's topic. The subscriber sees
// only events published after attachment.
func (b *Bus) Subscribe(runID string) *Subscriber {
	sub := &Subscriber{
		runID:  runID,
		events: make(chan entity.RunEvent, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	if b.topics[runID] == nil {
		b.topics[runID] = make(map[*Subscriber]struct{})
	}
	b.topics[runID][sub] = struct{}{}

	b.logger.Debug("Subscriber attached", zap.String("run_id", runID))
	return sub
}

// Unsubscribe detaches a subscriber and closes its mailbox.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if set, ok := b.topics[sub.runID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.topics, sub.runID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Publish fans an event out to every subscriber of its run. A full mailbox
// drops the event for that subscriber only.
func (b *Bus) Publish(event entity.RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for sub := range b.topics[event.RunID] {
		select {
		case sub.events <- event:
		default:
			b.logger.Warn("Subscriber mailbox full, dropping event",
				zap.String("run_id", event.RunID),
				zap.String("type", event.Type),
			)
		}
	}
}

// SubscriberCount reports how many subscribers a run currently has.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[runID])
}

// Close shuts down the bus and closes every subscriber mailbox.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.topics {
		for sub := range set {
			sub.close()
		}
	}
	b.topics = make(map[string]map[*Subscriber]struct{})
	b.logger.Info("Event bus closed")
}

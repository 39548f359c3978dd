package eventbus

import (
	"testing"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

func TestPublishReachesRunSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Close()

	sub := bus.Subscribe("run1")
	other := bus.Subscribe("run2")

	bus.Publish(entity.RunEvent{Type: entity.EventRunStatus, RunID: "run1", Status: "running"})

	select {
	case ev := <-sub.Events():
		if ev.Type != entity.EventRunStatus || ev.RunID != "run1" {
			t.Errorf("got %s/%s", ev.Type, ev.RunID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped on publish")
		}
	default:
		t.Fatal("subscriber got no event")
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("run2 subscriber got run1 event %s", ev.Type)
	default:
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	defer bus.Close()

	sub := bus.Subscribe("run1")
	for _, typ := range []string{entity.EventModelStarted, entity.EventCandidateToken, entity.EventCandidateDone} {
		bus.Publish(entity.RunEvent{Type: typ, RunID: "run1"})
	}

	for _, want := range []string{entity.EventModelStarted, entity.EventCandidateToken, entity.EventCandidateDone} {
		ev := <-sub.Events()
		if ev.Type != want {
			t.Errorf("got %s, want %s", ev.Type, want)
		}
	}
}

func TestFullMailboxDropsForThatSubscriberOnly(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Close()

	stalled := bus.Subscribe("run1")
	draining := bus.Subscribe("run1")

	bus.Publish(entity.RunEvent{Type: entity.EventCandidateToken, RunID: "run1", Delta: "a"})
	bus.Publish(entity.RunEvent{Type: entity.EventCandidateToken, RunID: "run1", Delta: "b"})

	if got := len(stalled.Events()); got != 1 {
		t.Errorf("stalled mailbox holds %d events, want 1 (second dropped)", got)
	}
	// The draining subscriber has the same capacity but we read between
	// publishes in real usage; here both land before any read, so it also
	// sees the drop. What matters is publish never blocked.
	if got := len(draining.Events()); got != 1 {
		t.Errorf("draining mailbox holds %d events, want 1", got)
	}
}

func TestUnsubscribeClosesMailbox(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Close()

	sub := bus.Subscribe("run1")
	if got := bus.SubscriberCount("run1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	bus.Unsubscribe(sub)
	if got := bus.SubscriberCount("run1"); got != 0 {
		t.Errorf("SubscriberCount = %d after unsubscribe, want 0", got)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("mailbox not closed after unsubscribe")
	}

	// Publishing to a topic with no subscribers is a no-op.
	bus.Publish(entity.RunEvent{Type: entity.EventRunStatus, RunID: "run1"})
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)

	s1 := bus.Subscribe("run1")
	s2 := bus.Subscribe("run2")
	bus.Close()

	for _, sub := range []*Subscriber{s1, s2} {
		if _, ok := <-sub.Events(); ok {
			t.Error("mailbox not closed on bus shutdown")
		}
	}

	// Subscribing after close yields an already-closed mailbox.
	late := bus.Subscribe("run3")
	if _, ok := <-late.Events(); ok {
		t.Error("late subscriber mailbox should be closed")
	}
}

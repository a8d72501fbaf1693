package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"electsys/contexts/enrollment/election-engine/adapters/memory"
	"electsys/contexts/enrollment/election-engine/ports"
)

type recordingPublisher struct {
	topics  []string
	events  []ports.EventEnvelope
	failOn  string
	failure error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failOn != "" && topic == p.failOn {
		return p.failure
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func appendTestEnvelope(t *testing.T, store *memory.Store, eventID, eventType string, occurredAt time.Time) {
	t.Helper()
	err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  "election-engine",
		OccurredAtUTC:  occurredAt,
		PartitionKey:   "stu-1",
		EntityType:     "election",
		EntityID:       "ele-1",
		PayloadVersion: 1,
		Payload:        map[string]any{"election_id": "ele-1"},
	})
	if err != nil {
		t.Fatalf("append outbox: %v", err)
	}
}

func TestOutboxRelayPublishesPendingInOrder(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2026, time.March, 11, 7, 0, 0, 0, time.UTC)
	appendTestEnvelope(t, store, "evt-1", "election.created", base)
	appendTestEnvelope(t, store, "evt-2", "election.withdrawn", base.Add(time.Second))

	publisher := &recordingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: base.Add(time.Minute)},
		BatchSize: 10,
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay run: %v", err)
	}

	if len(publisher.topics) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.topics))
	}
	if publisher.topics[0] != "election.created" || publisher.topics[1] != "election.withdrawn" {
		t.Fatalf("unexpected topic order %v", publisher.topics)
	}
	if publisher.events[0].EventID != "evt-1" {
		t.Fatalf("expected oldest event first, got %s", publisher.events[0].EventID)
	}

	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected all rows marked published, %d still pending", len(pending))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2026, time.March, 11, 7, 0, 0, 0, time.UTC)
	appendTestEnvelope(t, store, "evt-1", "election.created", base)
	appendTestEnvelope(t, store, "evt-2", "election.dropped", base.Add(time.Second))

	want := errors.New("bus down")
	publisher := &recordingPublisher{failOn: "election.dropped", failure: want}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: base.Add(time.Minute)},
		BatchSize: 10,
	}
	if err := relay.RunOnce(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected publish failure surfaced, got %v", err)
	}

	// The failed row stays pending for the next cycle.
	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 1 || pending[0].OutboxID != "evt-2" {
		t.Fatalf("expected evt-2 still pending, got %+v", pending)
	}
}

func TestOutboxRelayEmptyBacklogIsNoOp(t *testing.T) {
	store := memory.NewStore(nil)
	publisher := &recordingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: time.Now().UTC()},
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay run: %v", err)
	}
	if len(publisher.topics) != 0 {
		t.Fatalf("expected nothing published, got %v", publisher.topics)
	}
}

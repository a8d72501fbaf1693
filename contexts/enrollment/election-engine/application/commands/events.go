package commands

import (
	"time"

	"electsys/contexts/enrollment/election-engine/ports"
)

func newElectionEnvelope(
	eventID string,
	eventType string,
	studentID string,
	electionID string,
	occurredAt time.Time,
	payload map[string]any,
) ports.EventEnvelope {
	// Command-side events are partitioned by student so per-student consumers
	// observe mutations in lock-acquisition order.
	return ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  "election-engine",
		OccurredAtUTC:  occurredAt.UTC(),
		PartitionKey:   studentID,
		EntityType:     "election",
		EntityID:       electionID,
		PayloadVersion: 1,
		Payload:        payload,
	}
}

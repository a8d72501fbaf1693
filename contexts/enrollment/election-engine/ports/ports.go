package ports

import (
	"context"
	"time"

	"electsys/contexts/enrollment/election-engine/domain/entities"
)

type ElectionRepository interface {
	SaveElection(ctx context.Context, election entities.Election) error
	DeleteElection(ctx context.Context, electionID string) error
	GetElectionByPair(ctx context.Context, studentID string, courseID string) (entities.Election, bool, error)
	// ListElectionsByStudent returns the student's records filtered by status
	// (all statuses when the filter is empty), ordered by creation time then
	// election ID.
	ListElectionsByStudent(ctx context.Context, studentID string, statuses ...entities.ElectionStatus) ([]entities.Election, error)
	// ListElectionsByCourse returns the course's records filtered by status,
	// ordered by creation time then election ID. Ballot ranking depends on
	// that ordering for deterministic tie-breaks.
	ListElectionsByCourse(ctx context.Context, courseID string, statuses ...entities.ElectionStatus) ([]entities.Election, error)
	CountElectionsByCourse(ctx context.Context, courseID string, status entities.ElectionStatus) (int, error)
}

type CourseCatalog interface {
	GetCourse(ctx context.Context, courseID string) (entities.Course, error)
	ListCourses(ctx context.Context) ([]entities.Course, error)
}

type StudentDirectory interface {
	GetStudent(ctx context.Context, studentID string) (entities.Student, error)
	SaveStudent(ctx context.Context, student entities.Student) error
	ListStudentIDs(ctx context.Context) ([]string, error)
}

type MessageBox interface {
	AppendMessage(ctx context.Context, message entities.Message) error
	ListMessages(ctx context.Context, studentID string) ([]entities.Message, error)
}

// StudentLocks serializes all election mutations for a single student. A lock
// is provisioned when the student record is created; running against an
// unprovisioned student fails with ErrUnknownStudent without executing fn.
type StudentLocks interface {
	Provision(studentID string)
	WithStudentLock(studentID string, fn func() error) error
}

// PhaseGate reports whether the interactive election phase accepts mutations.
// The ballot run closes the gate before resolving and the HTTP layer rejects
// election mutations while it is closed. Implementations back the flag with
// shared state so the API and the ballot worker observe the same phase even
// when they run as separate processes.
type PhaseGate interface {
	PhaseOpen(ctx context.Context) (bool, error)
	OpenPhase(ctx context.Context) error
	ClosePhase(ctx context.Context) error
}

type EventEnvelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SourceService  string         `json:"source_service"`
	OccurredAtUTC  time.Time      `json:"occurred_at_utc"`
	PartitionKey   string         `json:"partition_key"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	PayloadVersion int            `json:"payload_version"`
	Payload        map[string]any `json:"payload"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"electsys/contexts/enrollment/election-engine/domain/entities"
	domainerrors "electsys/contexts/enrollment/election-engine/domain/errors"
	"electsys/contexts/enrollment/election-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-memory adapter behind every module port except the lock
// registry. It backs tests and local wiring.
type Store struct {
	mu sync.RWMutex

	elections map[string]entities.Election
	students  map[string]entities.Student
	courses   map[string]entities.Course
	messages  map[string]entities.Message
	outbox    map[string]outboxRecord
	phaseOpen bool
}

func NewStore(seed []entities.Election) *Store {
	elections := make(map[string]entities.Election, len(seed))
	for _, election := range seed {
		elections[election.ElectionID] = election
	}
	return &Store{
		elections: elections,
		students:  make(map[string]entities.Student),
		courses:   make(map[string]entities.Course),
		messages:  make(map[string]entities.Message),
		outbox:    make(map[string]outboxRecord),
		phaseOpen: true,
	}
}

func (s *Store) SetCourse(course entities.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[strings.TrimSpace(course.CourseID)] = course
}

func (s *Store) SetStudent(student entities.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[strings.TrimSpace(student.StudentID)] = student
}

func (s *Store) SaveElection(_ context.Context, election entities.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elections[strings.TrimSpace(election.ElectionID)] = election
	return nil
}

func (s *Store) DeleteElection(_ context.Context, electionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(electionID)
	if _, ok := s.elections[key]; !ok {
		return domainerrors.ErrElectionNotFound
	}
	delete(s.elections, key)
	return nil
}

func (s *Store) GetElectionByPair(
	_ context.Context,
	studentID string,
	courseID string,
) (entities.Election, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	studentID = strings.TrimSpace(studentID)
	courseID = strings.TrimSpace(courseID)
	for _, election := range s.elections {
		if election.StudentID == studentID && election.CourseID == courseID {
			return election, true, nil
		}
	}
	return entities.Election{}, false, nil
}

func (s *Store) ListElectionsByStudent(
	_ context.Context,
	studentID string,
	statuses ...entities.ElectionStatus,
) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Election, 0)
	for _, election := range s.elections {
		if election.StudentID != strings.TrimSpace(studentID) {
			continue
		}
		if matchStatus(election, statuses) {
			items = append(items, election)
		}
	}
	sortElections(items)
	return items, nil
}

func (s *Store) ListElectionsByCourse(
	_ context.Context,
	courseID string,
	statuses ...entities.ElectionStatus,
) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Election, 0)
	for _, election := range s.elections {
		if election.CourseID != strings.TrimSpace(courseID) {
			continue
		}
		if matchStatus(election, statuses) {
			items = append(items, election)
		}
	}
	sortElections(items)
	return items, nil
}

func (s *Store) CountElectionsByCourse(
	_ context.Context,
	courseID string,
	status entities.ElectionStatus,
) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, election := range s.elections {
		if election.CourseID == strings.TrimSpace(courseID) && election.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetCourse(_ context.Context, courseID string) (entities.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[strings.TrimSpace(courseID)]
	if !ok {
		return entities.Course{}, domainerrors.ErrCourseNotFound
	}
	return course, nil
}

func (s *Store) ListCourses(_ context.Context) ([]entities.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Course, 0, len(s.courses))
	for _, course := range s.courses {
		items = append(items, course)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CourseID < items[j].CourseID
	})
	return items, nil
}

func (s *Store) GetStudent(_ context.Context, studentID string) (entities.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[strings.TrimSpace(studentID)]
	if !ok {
		return entities.Student{}, domainerrors.ErrStudentNotFound
	}
	return student, nil
}

func (s *Store) SaveStudent(_ context.Context, student entities.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[strings.TrimSpace(student.StudentID)] = student
	return nil
}

func (s *Store) ListStudentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]string, 0, len(s.students))
	for studentID := range s.students {
		items = append(items, studentID)
	}
	sort.Strings(items)
	return items, nil
}

func (s *Store) AppendMessage(_ context.Context, message entities.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(message.MessageID)
	if key == "" {
		key = uuid.NewString()
		message.MessageID = key
	}
	s.messages[key] = message
	return nil
}

func (s *Store) ListMessages(_ context.Context, studentID string) ([]entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Message, 0)
	for _, message := range s.messages {
		if message.StudentID == strings.TrimSpace(studentID) {
			items = append(items, message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].MessageID < items[j].MessageID
	})
	return items, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, ok := s.outbox[outboxID]; ok {
		return domainerrors.ErrConflict
	}
	createdAt := envelope.OccurredAtUTC.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].OutboxID < items[j].OutboxID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) PhaseOpen(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phaseOpen, nil
}

func (s *Store) OpenPhase(_ context.Context) error {
	s.mu.Lock()
	s.phaseOpen = true
	s.mu.Unlock()
	return nil
}

func (s *Store) ClosePhase(_ context.Context) error {
	s.mu.Lock()
	s.phaseOpen = false
	s.mu.Unlock()
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func marshalEnvelope(envelope ports.EventEnvelope) ([]byte, error) {
	return json.Marshal(envelope)
}

func matchStatus(election entities.Election, statuses []entities.ElectionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, status := range statuses {
		if election.Status == status {
			return true
		}
	}
	return false
}

func sortElections(items []entities.Election) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ElectionID < items[j].ElectionID
	})
}

var _ ports.ElectionRepository = (*Store)(nil)
var _ ports.CourseCatalog = (*Store)(nil)
var _ ports.StudentDirectory = (*Store)(nil)
var _ ports.MessageBox = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.PhaseGate = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)

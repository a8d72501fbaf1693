package workers

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "electsys/contexts/enrollment/election-engine/application"
	"electsys/contexts/enrollment/election-engine/domain/entities"
	"electsys/contexts/enrollment/election-engine/ports"
)

// BallotRunner executes the fair-ballot batch: phase one resolves every
// course (pending bids ranked by willingpoint), phase two compiles one
// outcome message per student and finalizes the transient statuses. The run
// assumes the interactive election phase is closed; it takes no student
// locks. A failure on one course or student is logged and the batch
// continues.
type BallotRunner struct {
	Elections ports.ElectionRepository
	Courses   ports.CourseCatalog
	Students  ports.StudentDirectory
	Messages  ports.MessageBox
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// RunOnce resolves all courses, then notifies all students. Running again on
// a drained pending set is a no-op.
func (r BallotRunner) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	logger.Info("ballot run started",
		"event", "ballot_run_started",
		"module", "enrollment/election-engine",
		"layer", "worker",
	)

	courses, err := r.Courses.ListCourses(ctx)
	if err != nil {
		logger.Error("ballot course listing failed",
			"event", "ballot_course_list_failed",
			"module", "enrollment/election-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	for _, course := range courses {
		if err := r.resolveCourse(ctx, course); err != nil {
			logger.Error("ballot course resolution failed; continuing",
				"event", "ballot_course_resolve_failed",
				"module", "enrollment/election-engine",
				"layer", "worker",
				"course_id", course.CourseID,
				"error", err.Error(),
			)
		}
	}

	// Course pass completes in full before the student pass begins, so one
	// message reflects every course the student bid on.
	studentIDs, err := r.Students.ListStudentIDs(ctx)
	if err != nil {
		logger.Error("ballot student listing failed",
			"event", "ballot_student_list_failed",
			"module", "enrollment/election-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	for _, studentID := range studentIDs {
		if err := r.notifyStudent(ctx, studentID); err != nil {
			logger.Error("ballot student notification failed; continuing",
				"event", "ballot_notify_failed",
				"module", "enrollment/election-engine",
				"layer", "worker",
				"student_id", studentID,
				"error", err.Error(),
			)
		}
	}

	if err := r.appendBallotCompleted(ctx, len(courses), len(studentIDs)); err != nil {
		logger.Error("ballot completion event append failed",
			"event", "ballot_completed_event_failed",
			"module", "enrollment/election-engine",
			"layer", "worker",
			"error", err.Error(),
		)
	}
	logger.Info("ballot run completed",
		"event", "ballot_run_completed",
		"module", "enrollment/election-engine",
		"layer", "worker",
		"course_count", len(courses),
		"student_count", len(studentIDs),
	)
	return nil
}

// resolveCourse marks the top capacityLeft pending bids as new_elected and
// the remainder as new_failed. Willingpoint is a priority, not a lottery
// weight; ties break by earliest creation time, then election ID, so the
// outcome is reproducible.
func (r BallotRunner) resolveCourse(ctx context.Context, course entities.Course) error {
	logger := application.ResolveLogger(r.Logger)
	electedCount, err := r.Elections.CountElectionsByCourse(ctx, course.CourseID, entities.ElectionStatusElected)
	if err != nil {
		return err
	}
	pending, err := r.Elections.ListElectionsByCourse(ctx, course.CourseID, entities.ElectionStatusPending)
	if err != nil {
		return err
	}
	capacityLeft := course.Capacity - electedCount
	logger.Info("ballot resolving course",
		"event", "ballot_course_resolving",
		"module", "enrollment/election-engine",
		"layer", "worker",
		"course_id", course.CourseID,
		"capacity", course.Capacity,
		"elected_count", electedCount,
		"pending_count", len(pending),
	)
	if len(pending) == 0 {
		return nil
	}

	rankPending(pending)
	winners := capacityLeft
	if winners < 0 {
		winners = 0
	}
	if winners > len(pending) {
		winners = len(pending)
	}

	now := r.now()
	for i, election := range pending {
		if i < winners {
			election.Status = entities.ElectionStatusNewElected
		} else {
			election.Status = entities.ElectionStatusNewFailed
		}
		election.UpdatedAt = now
		if err := r.Elections.SaveElection(ctx, election); err != nil {
			logger.Error("ballot status assignment failed; continuing",
				"event", "ballot_assign_failed",
				"module", "enrollment/election-engine",
				"layer", "worker",
				"course_id", course.CourseID,
				"election_id", election.ElectionID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

// notifyStudent finalizes the student's transient records: new_elected
// records become elected and are listed as won, new_failed records are
// deleted with their credit snapshot refunded and listed as missed. One
// unread message is appended when the student had any outcome at all.
func (r BallotRunner) notifyStudent(ctx context.Context, studentID string) error {
	logger := application.ResolveLogger(r.Logger)
	won, err := r.Elections.ListElectionsByStudent(ctx, studentID, entities.ElectionStatusNewElected)
	if err != nil {
		return err
	}
	lost, err := r.Elections.ListElectionsByStudent(ctx, studentID, entities.ElectionStatusNewFailed)
	if err != nil {
		return err
	}
	if len(won) == 0 && len(lost) == 0 {
		return nil
	}

	now := r.now()
	wonNames := make([]string, 0, len(won))
	for _, election := range won {
		wonNames = append(wonNames, r.courseName(ctx, election.CourseID))
		election.Status = entities.ElectionStatusElected
		election.UpdatedAt = now
		if err := r.Elections.SaveElection(ctx, election); err != nil {
			return err
		}
	}

	lostNames := make([]string, 0, len(lost))
	refund := 0
	for _, election := range lost {
		lostNames = append(lostNames, r.courseName(ctx, election.CourseID))
		if err := r.Elections.DeleteElection(ctx, election.ElectionID); err != nil {
			return err
		}
		refund += election.Credit
	}
	if refund > 0 {
		student, err := r.Students.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		student.CurCredit -= refund
		if err := r.Students.SaveStudent(ctx, student); err != nil {
			return err
		}
	}

	messageID, err := r.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	if err := r.Messages.AppendMessage(ctx, entities.Message{
		MessageID: messageID,
		StudentID: studentID,
		Title:     "Ballot result",
		Content:   composeOutcome(wonNames, lostNames),
		Read:      false,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	logger.Info("ballot outcome delivered",
		"event", "ballot_outcome_delivered",
		"module", "enrollment/election-engine",
		"layer", "worker",
		"student_id", studentID,
		"won_count", len(won),
		"lost_count", len(lost),
		"refunded_credit", refund,
	)
	return nil
}

// rankPending orders bids by willingpoint descending with creation time and
// election ID as deterministic tie-breaks.
func rankPending(pending []entities.Election) {
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Willingpoint != pending[j].Willingpoint {
			return pending[i].Willingpoint > pending[j].Willingpoint
		}
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ElectionID < pending[j].ElectionID
	})
}

func composeOutcome(wonNames []string, lostNames []string) string {
	var b strings.Builder
	b.WriteString("Ballot finished.")
	if len(wonNames) > 0 {
		b.WriteString(" Courses won: ")
		b.WriteString(strings.Join(wonNames, ", "))
		b.WriteString(".")
	}
	if len(lostNames) > 0 {
		b.WriteString(" Courses missed: ")
		b.WriteString(strings.Join(lostNames, ", "))
		b.WriteString(".")
	}
	return b.String()
}

func (r BallotRunner) courseName(ctx context.Context, courseID string) string {
	course, err := r.Courses.GetCourse(ctx, courseID)
	if err != nil || strings.TrimSpace(course.Name) == "" {
		return courseID
	}
	return course.Name
}

func (r BallotRunner) now() time.Time {
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	return now
}

func (r BallotRunner) appendBallotCompleted(ctx context.Context, courseCount int, studentCount int) error {
	if r.Outbox == nil {
		return nil
	}
	eventID, err := r.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	now := r.now()
	return r.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:        eventID,
		EventType:      "ballot.completed",
		SourceService:  "election-engine",
		OccurredAtUTC:  now,
		PartitionKey:   "ballot",
		EntityType:     "ballot",
		EntityID:       eventID,
		PayloadVersion: 1,
		Payload: map[string]any{
			"course_count":  courseCount,
			"student_count": studentCount,
			"occurred_at":   now.Format(time.RFC3339),
		},
	})
}

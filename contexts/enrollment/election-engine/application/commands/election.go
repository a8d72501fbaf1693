package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "electsys/contexts/enrollment/election-engine/application"
	"electsys/contexts/enrollment/election-engine/domain/entities"
	domainerrors "electsys/contexts/enrollment/election-engine/domain/errors"
	"electsys/contexts/enrollment/election-engine/ports"
)

// EnrollCommand is the write-model input for a new course bid.
type EnrollCommand struct {
	StudentID    string
	CourseID     string
	Willingpoint int
}

// EditWillingpointCommand replaces the willingpoint on an existing bid.
type EditWillingpointCommand struct {
	StudentID    string
	CourseID     string
	Willingpoint int
}

// WithdrawCommand removes a pending bid (WithdrawPending) or a confirmed
// seat (Drop), refunding the credit snapshot either way.
type WithdrawCommand struct {
	StudentID string
	CourseID  string
}

// ElectionUseCase orchestrates every interactive election mutation. Each
// operation validates and mutates under the acting student's lock, so
// validation snapshots cannot race with concurrent requests for the same
// student. Course capacity is deliberately not checked here; the ballot run
// is the only place seats are allocated.
type ElectionUseCase struct {
	Elections ports.ElectionRepository
	Courses   ports.CourseCatalog
	Students  ports.StudentDirectory
	Locks     ports.StudentLocks
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// Enroll creates a pending election for (student, course) after the
// duplicate, course-existence, willingpoint, time-conflict and credit checks
// all pass. The student's current credit is charged immediately.
func (uc ElectionUseCase) Enroll(ctx context.Context, cmd EnrollCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	studentID := strings.TrimSpace(cmd.StudentID)
	courseID := strings.TrimSpace(cmd.CourseID)
	logger.Info("election enroll processing started",
		"event", "election_enroll_started",
		"module", "enrollment/election-engine",
		"layer", "application",
		"student_id", studentID,
		"course_id", courseID,
		"willingpoint", cmd.Willingpoint,
	)
	if studentID == "" || courseID == "" ||
		cmd.Willingpoint < 0 || cmd.Willingpoint > entities.MaxWillingpoints {
		logger.Warn("election enroll validation failed",
			"event", "election_enroll_validation_failed",
			"module", "enrollment/election-engine",
			"layer", "application",
			"student_id", studentID,
			"course_id", courseID,
			"willingpoint", cmd.Willingpoint,
		)
		return domainerrors.ErrInvalidElectionInput
	}

	return uc.Locks.WithStudentLock(studentID, func() error {
		if _, found, err := uc.Elections.GetElectionByPair(ctx, studentID, courseID); err != nil {
			return err
		} else if found {
			logger.Warn("election enroll duplicate",
				"event", "election_enroll_duplicate",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
			)
			return domainerrors.ErrDuplicateElection
		}

		course, err := uc.Courses.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		student, err := uc.Students.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}

		active, err := uc.Elections.ListElectionsByStudent(ctx, studentID,
			entities.ElectionStatusPending, entities.ElectionStatusElected)
		if err != nil {
			return err
		}
		if !withinWillingpointBudget(sumWillingpoints(active), 0, cmd.Willingpoint) {
			logger.Warn("election enroll willingpoint budget exceeded",
				"event", "election_enroll_wp_exceeded",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
				"willingpoint", cmd.Willingpoint,
				"active_wp_sum", sumWillingpoints(active),
			)
			return domainerrors.ErrWillingpointExceeded
		}

		if scheduleConflicts(course, uc.coursesOf(ctx, active)) {
			logger.Warn("election enroll time conflict",
				"event", "election_enroll_time_conflict",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
			)
			return domainerrors.ErrTimeConflict
		}

		if !withinCreditLimit(student, 0, course.Credit) {
			logger.Warn("election enroll credit limit exceeded",
				"event", "election_enroll_credit_exceeded",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
				"cur_credit", student.CurCredit,
				"course_credit", course.Credit,
				"credit_limit", student.CreditLimit,
			)
			return domainerrors.ErrCreditLimitExceeded
		}

		now := uc.now()
		electionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		election := entities.Election{
			ElectionID:   electionID,
			StudentID:    studentID,
			CourseID:     courseID,
			Willingpoint: cmd.Willingpoint,
			Credit:       course.Credit,
			Status:       entities.ElectionStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		student.CurCredit += course.Credit
		if err := uc.Students.SaveStudent(ctx, student); err != nil {
			return err
		}
		if err := uc.Elections.SaveElection(ctx, election); err != nil {
			return err
		}
		if err := uc.appendElectionEvent(ctx, "election.created", election, now, nil); err != nil {
			return err
		}
		logger.Info("election created",
			"event", "election_created",
			"module", "enrollment/election-engine",
			"layer", "application",
			"election_id", election.ElectionID,
			"student_id", studentID,
			"course_id", courseID,
			"willingpoint", election.Willingpoint,
			"credit", election.Credit,
		)
		return nil
	})
}

// EditWillingpoint replaces the willingpoint on an existing pending or
// elected record, re-checking the 99-point budget with the delta applied.
func (uc ElectionUseCase) EditWillingpoint(ctx context.Context, cmd EditWillingpointCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	studentID := strings.TrimSpace(cmd.StudentID)
	courseID := strings.TrimSpace(cmd.CourseID)
	logger.Info("election willingpoint edit started",
		"event", "election_edit_wp_started",
		"module", "enrollment/election-engine",
		"layer", "application",
		"student_id", studentID,
		"course_id", courseID,
		"willingpoint", cmd.Willingpoint,
	)
	if studentID == "" || courseID == "" ||
		cmd.Willingpoint < 0 || cmd.Willingpoint > entities.MaxWillingpoints {
		return domainerrors.ErrInvalidElectionInput
	}

	return uc.Locks.WithStudentLock(studentID, func() error {
		election, found, err := uc.Elections.GetElectionByPair(ctx, studentID, courseID)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrElectionNotFound
		}

		active, err := uc.Elections.ListElectionsByStudent(ctx, studentID,
			entities.ElectionStatusPending, entities.ElectionStatusElected)
		if err != nil {
			return err
		}
		if !withinWillingpointBudget(sumWillingpoints(active), election.Willingpoint, cmd.Willingpoint) {
			logger.Warn("election willingpoint edit budget exceeded",
				"event", "election_edit_wp_exceeded",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
				"willingpoint", cmd.Willingpoint,
				"active_wp_sum", sumWillingpoints(active),
			)
			return domainerrors.ErrWillingpointExceeded
		}

		now := uc.now()
		election.Willingpoint = cmd.Willingpoint
		election.UpdatedAt = now
		if err := uc.Elections.SaveElection(ctx, election); err != nil {
			return err
		}
		if err := uc.appendElectionEvent(ctx, "election.willingpoint_updated", election, now, nil); err != nil {
			return err
		}
		logger.Info("election willingpoint updated",
			"event", "election_wp_updated",
			"module", "enrollment/election-engine",
			"layer", "application",
			"election_id", election.ElectionID,
			"student_id", studentID,
			"course_id", courseID,
			"willingpoint", election.Willingpoint,
		)
		return nil
	})
}

// WithdrawPending deletes a pending bid and refunds its credit snapshot.
func (uc ElectionUseCase) WithdrawPending(ctx context.Context, cmd WithdrawCommand) error {
	return uc.remove(ctx, cmd, entities.ElectionStatusPending, "election.withdrawn")
}

// Drop deletes a confirmed seat and refunds its credit snapshot.
func (uc ElectionUseCase) Drop(ctx context.Context, cmd WithdrawCommand) error {
	return uc.remove(ctx, cmd, entities.ElectionStatusElected, "election.dropped")
}

func (uc ElectionUseCase) remove(
	ctx context.Context,
	cmd WithdrawCommand,
	requiredStatus entities.ElectionStatus,
	eventType string,
) error {
	logger := application.ResolveLogger(uc.Logger)
	studentID := strings.TrimSpace(cmd.StudentID)
	courseID := strings.TrimSpace(cmd.CourseID)
	logger.Info("election removal started",
		"event", "election_remove_started",
		"module", "enrollment/election-engine",
		"layer", "application",
		"student_id", studentID,
		"course_id", courseID,
		"required_status", string(requiredStatus),
	)
	if studentID == "" || courseID == "" {
		return domainerrors.ErrInvalidElectionInput
	}

	return uc.Locks.WithStudentLock(studentID, func() error {
		election, found, err := uc.Elections.GetElectionByPair(ctx, studentID, courseID)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrElectionNotFound
		}
		if election.Status != requiredStatus {
			logger.Warn("election removal wrong status",
				"event", "election_remove_wrong_status",
				"module", "enrollment/election-engine",
				"layer", "application",
				"student_id", studentID,
				"course_id", courseID,
				"status", string(election.Status),
				"required_status", string(requiredStatus),
			)
			return domainerrors.ErrWrongElectionStatus
		}

		student, err := uc.Students.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		student.CurCredit -= election.Credit
		if err := uc.Students.SaveStudent(ctx, student); err != nil {
			return err
		}
		if err := uc.Elections.DeleteElection(ctx, election.ElectionID); err != nil {
			return err
		}
		now := uc.now()
		if err := uc.appendElectionEvent(ctx, eventType, election, now, map[string]any{
			"refunded_credit": election.Credit,
		}); err != nil {
			return err
		}
		logger.Info("election removed",
			"event", "election_removed",
			"module", "enrollment/election-engine",
			"layer", "application",
			"election_id", election.ElectionID,
			"student_id", studentID,
			"course_id", courseID,
			"refunded_credit", election.Credit,
		)
		return nil
	})
}

func (uc ElectionUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

// coursesOf resolves the catalog entries for a student's active records. A
// course missing from the catalog is logged and skipped; its slots cannot
// contribute to the conflict grid.
func (uc ElectionUseCase) coursesOf(ctx context.Context, elections []entities.Election) []entities.Course {
	logger := application.ResolveLogger(uc.Logger)
	courses := make([]entities.Course, 0, len(elections))
	for _, election := range elections {
		course, err := uc.Courses.GetCourse(ctx, election.CourseID)
		if err != nil {
			logger.Warn("committed course missing from catalog",
				"event", "election_committed_course_missing",
				"module", "enrollment/election-engine",
				"layer", "application",
				"election_id", election.ElectionID,
				"course_id", election.CourseID,
				"error", err.Error(),
			)
			continue
		}
		courses = append(courses, course)
	}
	return courses
}

func (uc ElectionUseCase) appendElectionEvent(
	ctx context.Context,
	eventType string,
	election entities.Election,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"election_id":  election.ElectionID,
		"student_id":   election.StudentID,
		"course_id":    election.CourseID,
		"willingpoint": election.Willingpoint,
		"credit":       election.Credit,
		"status":       string(election.Status),
		"occurred_at":  occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		payload[key] = value
	}
	envelope := newElectionEnvelope(eventID, eventType, election.StudentID, election.ElectionID, occurredAt, payload)
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

package queries

import (
	"context"
	"strings"

	"electsys/contexts/enrollment/election-engine/domain/entities"
	"electsys/contexts/enrollment/election-engine/ports"
)

// ScheduleEntry is one active election joined with its catalog course and the
// course's current demand counters.
type ScheduleEntry struct {
	CourseID     string
	CourseName   string
	Credit       int
	Capacity     int
	Slots        []entities.TimeSlot
	Willingpoint int
	Status       entities.ElectionStatus
	ElectedCount int
	PendingCount int
}

type StudentSchedule struct {
	StudentID   string
	CurCredit   int
	CreditLimit int
	Entries     []ScheduleEntry
}

type CourseDemand struct {
	CourseID     string
	Capacity     int
	ElectedCount int
	PendingCount int
}

type StudentMessages struct {
	StudentID   string
	UnreadCount int
	Messages    []entities.Message
}

// ScheduleUseCase serves the read side: per-student schedules, per-course
// demand and the ballot message box. Reads take no student lock; they are
// point-in-time snapshots.
type ScheduleUseCase struct {
	Elections ports.ElectionRepository
	Courses   ports.CourseCatalog
	Students  ports.StudentDirectory
	Messages  ports.MessageBox
}

func (uc ScheduleUseCase) StudentSchedule(ctx context.Context, studentID string) (StudentSchedule, error) {
	studentID = strings.TrimSpace(studentID)
	student, err := uc.Students.GetStudent(ctx, studentID)
	if err != nil {
		return StudentSchedule{}, err
	}
	active, err := uc.Elections.ListElectionsByStudent(ctx, studentID,
		entities.ElectionStatusPending, entities.ElectionStatusElected)
	if err != nil {
		return StudentSchedule{}, err
	}

	schedule := StudentSchedule{
		StudentID:   studentID,
		CurCredit:   student.CurCredit,
		CreditLimit: student.CreditLimit,
		Entries:     make([]ScheduleEntry, 0, len(active)),
	}
	for _, election := range active {
		course, err := uc.Courses.GetCourse(ctx, election.CourseID)
		if err != nil {
			return StudentSchedule{}, err
		}
		demand, err := uc.CourseDemand(ctx, election.CourseID)
		if err != nil {
			return StudentSchedule{}, err
		}
		schedule.Entries = append(schedule.Entries, ScheduleEntry{
			CourseID:     course.CourseID,
			CourseName:   course.Name,
			Credit:       course.Credit,
			Capacity:     course.Capacity,
			Slots:        course.Slots,
			Willingpoint: election.Willingpoint,
			Status:       election.Status,
			ElectedCount: demand.ElectedCount,
			PendingCount: demand.PendingCount,
		})
	}
	return schedule, nil
}

func (uc ScheduleUseCase) CourseDemand(ctx context.Context, courseID string) (CourseDemand, error) {
	courseID = strings.TrimSpace(courseID)
	course, err := uc.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return CourseDemand{}, err
	}
	elected, err := uc.Elections.CountElectionsByCourse(ctx, courseID, entities.ElectionStatusElected)
	if err != nil {
		return CourseDemand{}, err
	}
	pending, err := uc.Elections.CountElectionsByCourse(ctx, courseID, entities.ElectionStatusPending)
	if err != nil {
		return CourseDemand{}, err
	}
	return CourseDemand{
		CourseID:     course.CourseID,
		Capacity:     course.Capacity,
		ElectedCount: elected,
		PendingCount: pending,
	}, nil
}

func (uc ScheduleUseCase) StudentMessages(ctx context.Context, studentID string) (StudentMessages, error) {
	studentID = strings.TrimSpace(studentID)
	if _, err := uc.Students.GetStudent(ctx, studentID); err != nil {
		return StudentMessages{}, err
	}
	messages, err := uc.Messages.ListMessages(ctx, studentID)
	if err != nil {
		return StudentMessages{}, err
	}
	unread := 0
	for _, message := range messages {
		if !message.Read {
			unread++
		}
	}
	return StudentMessages{
		StudentID:   studentID,
		UnreadCount: unread,
		Messages:    messages,
	}, nil
}

package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"electsys/contexts/enrollment/election-engine/application/commands"
	"electsys/contexts/enrollment/election-engine/application/queries"
	httptransport "electsys/contexts/enrollment/election-engine/transport/http"
)

// Handler maps transport DTOs onto commands and queries. The HTTP server
// resolves the acting student before calling in; the core only ever sees
// already-typed values.
type Handler struct {
	Elections commands.ElectionUseCase
	Schedules queries.ScheduleUseCase
	Logger    *slog.Logger
}

func (h Handler) EnrollHandler(ctx context.Context, studentID string, req httptransport.EnrollRequest) error {
	return h.Elections.Enroll(ctx, commands.EnrollCommand{
		StudentID:    studentID,
		CourseID:     req.CourseID,
		Willingpoint: req.Willingpoint,
	})
}

func (h Handler) EditWillingpointHandler(
	ctx context.Context,
	studentID string,
	courseID string,
	req httptransport.EditWillingpointRequest,
) error {
	return h.Elections.EditWillingpoint(ctx, commands.EditWillingpointCommand{
		StudentID:    studentID,
		CourseID:     courseID,
		Willingpoint: req.Willingpoint,
	})
}

func (h Handler) WithdrawPendingHandler(ctx context.Context, studentID string, courseID string) error {
	return h.Elections.WithdrawPending(ctx, commands.WithdrawCommand{
		StudentID: studentID,
		CourseID:  courseID,
	})
}

func (h Handler) DropHandler(ctx context.Context, studentID string, courseID string) error {
	return h.Elections.Drop(ctx, commands.WithdrawCommand{
		StudentID: studentID,
		CourseID:  courseID,
	})
}

func (h Handler) ScheduleHandler(ctx context.Context, studentID string) (httptransport.ScheduleResponse, error) {
	schedule, err := h.Schedules.StudentSchedule(ctx, studentID)
	if err != nil {
		return httptransport.ScheduleResponse{}, err
	}
	resp := httptransport.ScheduleResponse{
		StudentID:   schedule.StudentID,
		CurCredit:   schedule.CurCredit,
		CreditLimit: schedule.CreditLimit,
		Courses:     make([]httptransport.ScheduleEntryDTO, 0, len(schedule.Entries)),
	}
	for _, entry := range schedule.Entries {
		times := make([]httptransport.TimeSlotDTO, 0, len(entry.Slots))
		for _, slot := range entry.Slots {
			times = append(times, httptransport.TimeSlotDTO{Day: slot.Day, Period: slot.Period})
		}
		resp.Courses = append(resp.Courses, httptransport.ScheduleEntryDTO{
			CourseID:     entry.CourseID,
			CourseName:   entry.CourseName,
			Credit:       entry.Credit,
			Capacity:     entry.Capacity,
			Times:        times,
			Willingpoint: entry.Willingpoint,
			Status:       string(entry.Status),
			ElectedCount: entry.ElectedCount,
			PendingCount: entry.PendingCount,
		})
	}
	return resp, nil
}

func (h Handler) CourseDemandHandler(ctx context.Context, courseID string) (httptransport.CourseDemandResponse, error) {
	demand, err := h.Schedules.CourseDemand(ctx, courseID)
	if err != nil {
		return httptransport.CourseDemandResponse{}, err
	}
	return httptransport.CourseDemandResponse{
		CourseID:     demand.CourseID,
		Capacity:     demand.Capacity,
		ElectedCount: demand.ElectedCount,
		PendingCount: demand.PendingCount,
	}, nil
}

func (h Handler) MessagesHandler(ctx context.Context, studentID string) (httptransport.MessagesResponse, error) {
	box, err := h.Schedules.StudentMessages(ctx, studentID)
	if err != nil {
		return httptransport.MessagesResponse{}, err
	}
	resp := httptransport.MessagesResponse{
		StudentID:   box.StudentID,
		UnreadCount: box.UnreadCount,
		Messages:    make([]httptransport.MessageDTO, 0, len(box.Messages)),
	}
	for _, message := range box.Messages {
		resp.Messages = append(resp.Messages, httptransport.MessageDTO{
			MessageID: message.MessageID,
			Title:     message.Title,
			Content:   message.Content,
			Read:      message.Read,
			CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

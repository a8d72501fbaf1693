package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EnrollRequest struct {
	CourseID     string `json:"course_id"`
	Willingpoint int    `json:"willingpoint"`
}

type EditWillingpointRequest struct {
	Willingpoint int `json:"willingpoint"`
}

type TimeSlotDTO struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

type ScheduleEntryDTO struct {
	CourseID     string        `json:"course_id"`
	CourseName   string        `json:"course_name"`
	Credit       int           `json:"credit"`
	Capacity     int           `json:"capacity"`
	Times        []TimeSlotDTO `json:"times"`
	Willingpoint int           `json:"willingpoint"`
	Status       string        `json:"status"`
	ElectedCount int           `json:"elected_count"`
	PendingCount int           `json:"pending_count"`
}

type ScheduleResponse struct {
	StudentID   string             `json:"student_id"`
	CurCredit   int                `json:"cur_credit"`
	CreditLimit int                `json:"credit_limit"`
	Courses     []ScheduleEntryDTO `json:"courses"`
}

type CourseDemandResponse struct {
	CourseID     string `json:"course_id"`
	Capacity     int    `json:"capacity"`
	ElectedCount int    `json:"elected_count"`
	PendingCount int    `json:"pending_count"`
}

type MessageDTO struct {
	MessageID string `json:"message_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

type MessagesResponse struct {
	StudentID   string       `json:"student_id"`
	UnreadCount int          `json:"unread_count"`
	Messages    []MessageDTO `json:"messages"`
}

type BallotRunResponse struct {
	Started bool `json:"started"`
}

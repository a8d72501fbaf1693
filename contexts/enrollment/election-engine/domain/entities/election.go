package entities

import "time"

type ElectionStatus string

const (
	// ElectionStatusPending is a bid waiting for the ballot run.
	ElectionStatusPending ElectionStatus = "pending"
	// ElectionStatusElected is a confirmed seat.
	ElectionStatusElected ElectionStatus = "elected"
	// ElectionStatusNewElected marks a just-won bid inside a ballot run.
	// Collapsed to elected before the run completes.
	ElectionStatusNewElected ElectionStatus = "new_elected"
	// ElectionStatusNewFailed marks a just-lost bid inside a ballot run.
	// Deleted (with credit refund) before the run completes.
	ElectionStatusNewFailed ElectionStatus = "new_failed"
)

// Election is one student's bid on one course. At most one record exists per
// (student, course) pair. Credit is a snapshot of the course credit at
// enrollment time and never changes afterwards.
type Election struct {
	ElectionID   string
	StudentID    string
	CourseID     string
	Willingpoint int
	Credit       int
	Status       ElectionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the record counts against the student's
// willingpoint and credit budgets.
func (e Election) Active() bool {
	return e.Status == ElectionStatusPending || e.Status == ElectionStatusElected
}

// TimeSlot is one occupied (day, period) cell of the weekly timetable.
type TimeSlot struct {
	Day    int
	Period int
}

type Course struct {
	CourseID string
	Name     string
	Credit   int
	Capacity int
	Slots    []TimeSlot
}

// OverlapsAny reports whether the course shares any timetable slot with
// occupied.
func (c Course) OverlapsAny(occupied map[TimeSlot]struct{}) bool {
	for _, slot := range c.Slots {
		if _, taken := occupied[slot]; taken {
			return true
		}
	}
	return false
}

// Student carries the budget fields the election engine mutates. CurCredit
// always equals the credit-snapshot sum over the student's active records.
type Student struct {
	StudentID   string
	CurCredit   int
	CreditLimit int
}

// MaxWillingpoints is the per-student willingpoint budget across all active
// bids.
const MaxWillingpoints = 99

// Message is a ballot-outcome notification, created unread.
type Message struct {
	MessageID string
	StudentID string
	Title     string
	Content   string
	Read      bool
	CreatedAt time.Time
}

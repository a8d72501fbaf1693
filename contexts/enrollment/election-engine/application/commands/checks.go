package commands

import (
	"electsys/contexts/enrollment/election-engine/domain/entities"
)

// withinWillingpointBudget checks the 0-99 willingpoint budget for a student
// replacing oldWp with newWp. oldWp is 0 for a fresh enrollment.
func withinWillingpointBudget(activeWpSum int, oldWp int, newWp int) bool {
	return activeWpSum-oldWp+newWp <= entities.MaxWillingpoints
}

// withinCreditLimit checks the student's credit cap for replacing oldCredit
// with newCredit. oldCredit is 0 for a fresh enrollment.
func withinCreditLimit(student entities.Student, oldCredit int, newCredit int) bool {
	return student.CurCredit-oldCredit+newCredit <= student.CreditLimit
}

// occupiedSlots flattens the timetable cells of the given courses.
func occupiedSlots(courses []entities.Course) map[entities.TimeSlot]struct{} {
	occupied := make(map[entities.TimeSlot]struct{})
	for _, course := range courses {
		for _, slot := range course.Slots {
			occupied[slot] = struct{}{}
		}
	}
	return occupied
}

// scheduleConflicts reports whether candidate shares a (day, period) slot
// with any of the student's committed courses.
func scheduleConflicts(candidate entities.Course, committed []entities.Course) bool {
	return candidate.OverlapsAny(occupiedSlots(committed))
}

func sumWillingpoints(elections []entities.Election) int {
	total := 0
	for _, election := range elections {
		total += election.Willingpoint
	}
	return total
}

package errors

import "errors"

var (
	ErrInvalidElectionInput = errors.New("invalid election input")
	ErrDuplicateElection    = errors.New("election already exists for this course")
	ErrCourseNotFound       = errors.New("course not found")
	ErrElectionNotFound     = errors.New("election not found")
	ErrWillingpointExceeded = errors.New("willingpoint budget exceeded")
	ErrTimeConflict         = errors.New("course schedule conflicts with an existing election")
	ErrCreditLimitExceeded  = errors.New("credit limit exceeded")
	ErrWrongElectionStatus  = errors.New("election is not in the required status")
	ErrUnknownStudent       = errors.New("student record is not provisioned")
	ErrStudentNotFound      = errors.New("student not found")
	ErrElectionPhaseClosed  = errors.New("election phase is closed")
	ErrConflict             = errors.New("election conflict")
)

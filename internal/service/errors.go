package service

import "errors"

var (
	// ErrActiveHomeworkExists indicates the teacher already has an active homework.
	ErrActiveHomeworkExists = errors.New("an active homework already exists")
	// ErrSubmissionNotActive indicates the submission is completed or cancelled.
	ErrSubmissionNotActive = errors.New("submission is not active")
	// ErrInvalidProgressDelta indicates a negative or oversized progress increment.
	ErrInvalidProgressDelta = errors.New("progress delta must be between 0 and 1000000")
	// ErrProgressLimitExceeded indicates the metric total would pass its ceiling.
	ErrProgressLimitExceeded = errors.New("progress total limit exceeded")
	// ErrUnknownProgressMetric indicates the homework has no requirement for the metric.
	ErrUnknownProgressMetric = errors.New("metric is not tracked by this homework")
	// ErrTooManyEvidenceLinks indicates the evidence list exceeds the allowed size.
	ErrTooManyEvidenceLinks = errors.New("too many evidence links")
	// ErrFlowOwnershipMismatch indicates the flow belongs to another teacher.
	ErrFlowOwnershipMismatch = errors.New("flow belongs to another teacher")
	// ErrUnknownTrackingCode indicates no submission owns the tracking code.
	ErrUnknownTrackingCode = errors.New("unknown tracking code")
	// ErrCodeGenerationExhausted indicates every tracking code attempt collided.
	ErrCodeGenerationExhausted = errors.New("tracking code generation exhausted")
	// ErrRestartNotAllowed indicates there is no cancelled attempt to restart from.
	ErrRestartNotAllowed = errors.New("homework can only be restarted after cancelling it")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrFlowNotFound indicates an automation flow could not be found.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrHomeworkNotFound indicates a homework could not be found.
	ErrHomeworkNotFound = errors.New("homework not found")
	// ErrInvalidTriggerType indicates an unsupported trigger type or keyword set.
	ErrInvalidTriggerType = errors.New("invalid trigger type")
)

package entities

import "errors"

// Scheduling failures surfaced to callers. Match them with errors.Is.
var (
	// ErrNoAvailableCapacity means every reachable working day within the
	// horizon is fully booked.
	ErrNoAvailableCapacity = errors.New("no available capacity")
	// ErrPlanningHorizonExceeded means the horizon was reached before the
	// quantity was exhausted. A partial plan may accompany it.
	ErrPlanningHorizonExceeded = errors.New("planning horizon exceeded")
	// ErrInvalidDate means the target date is a holiday or weekend for the line.
	ErrInvalidDate = errors.New("invalid target date")
	// ErrAllocationConflict means the optimistic check at commit failed.
	ErrAllocationConflict = errors.New("allocation conflict")
	// ErrCascadeAborted means a member of a reflow or batch cascade failed and
	// nothing was persisted.
	ErrCascadeAborted = errors.New("cascade aborted")
	// ErrPlacementChoiceRequired means conflicts were found and no placement
	// policy was supplied.
	ErrPlacementChoiceRequired = errors.New("placement choice required")

	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid order state transition")
	ErrInvalidRampUpInputs = errors.New("invalid ramp-up inputs")
	ErrLineInactive        = errors.New("production line is inactive")
	ErrInvariantViolation  = errors.New("allocation invariant violated")
)

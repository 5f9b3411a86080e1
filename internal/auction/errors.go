package auction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidState       = errors.New("auction is not in a valid state for this operation")
	ErrAlreadyStarted     = errors.New("auction already started")
	ErrInvalidAmount      = errors.New("bid amount must be a positive number")
	ErrNotEligible        = errors.New("auction is not eligible for this operation")
	ErrNotFound           = errors.New("not found")
	ErrBlocked            = errors.New("participant is blocked")
	ErrInvalidParticipant = errors.New("participant cannot take part in this operation")
	ErrPartialFailure     = errors.New("reconciliation partially failed")
	ErrInvalidInput       = errors.New("invalid input")
)

// PartialFailureError lists the auctions a reconciliation could not process.
// The auctions that succeeded keep their results.
type PartialFailureError struct {
	ParticipantID string
	Failures      map[string]error
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("%s for participant %s (%s)", ErrPartialFailure, e.ParticipantID, strings.Join(parts, "; "))
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

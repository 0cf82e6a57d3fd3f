// File: /models/errors.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTripNotFound is returned when a point read or update targets a trip
// that does not exist in the collection.
var ErrTripNotFound = errors.New("trip not found")

// ErrRemoteUnavailable marks transport failures against the trip store.
// Callers keep their last-known view and prompt the user to retry.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// DenyReason identifies why the participation engine refused an action.
type DenyReason string

const (
	DenyNotAuthenticated DenyReason = "not_authenticated"
	DenyAlreadyJoined    DenyReason = "already_joined"
	DenyTripFull         DenyReason = "trip_full"
	DenyNotAJoiner       DenyReason = "not_a_joiner"
	DenyAlreadyCompleted DenyReason = "already_completed"
	DenyNotAParticipant  DenyReason = "not_a_participant"
)

// PreconditionError is a business-rule refusal. It is always recovered
// locally and rendered as user-facing guidance, never a silent no-op.
type PreconditionError struct {
	Reason  DenyReason
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition denied (%s): %s", e.Reason, e.Message)
}

// ValidationErrors collects per-field failures from the trip form.
// All fields are checked; validation never short-circuits.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// PartialCommitError reports a creation whose trip document was committed
// but whose asset upload or image patch failed. The document has been
// rolled back (best effort) by the time this error is returned.
type PartialCommitError struct {
	TripID string
	Err    error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("trip %s rolled back after partial commit: %v", e.TripID, e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

// File: /services/participation_service.go
package services

import (
	"paddletrips-api/models"
)

// TripAction is a participation intent against a single trip.
type TripAction string

const (
	ActionJoin     TripAction = "join"
	ActionCancel   TripAction = "cancel"
	ActionComplete TripAction = "complete"
)

// Decision is the outcome of evaluating an action against the locally
// known trip state. When allowed, Delta carries the field update to apply
// through the sync layer.
type Decision struct {
	Allowed bool
	Reason  models.DenyReason
	Message string
	Delta   models.TripDelta
}

// Denied converts a refusal into the error taxonomy.
func (d Decision) Denied() *models.PreconditionError {
	if d.Allowed {
		return nil
	}
	return &models.PreconditionError{Reason: d.Reason, Message: d.Message}
}

// Decide evaluates whether actorID may perform action on trip. It is a
// pure function: the capacity check runs against the trip as locally
// known, so two actors racing for the true last slot can both be allowed
// (the store's set-add merge keeps both; over-capacity documents are
// surfaced as-is, never corrected here).
func Decide(trip models.Trip, actorID string, action TripAction) Decision {
	// A signed-in actor is required before any action-specific rule.
	if actorID == "" {
		return deny(models.DenyNotAuthenticated,
			"Log in or create an account to join, manage, or complete this trip.")
	}

	switch action {
	case ActionJoin:
		return decideJoin(trip, actorID)
	case ActionCancel:
		return decideCancel(trip, actorID)
	case ActionComplete:
		return decideComplete(trip, actorID)
	default:
		return deny(models.DenyNotAuthenticated, "Unknown trip action.")
	}
}

func decideJoin(trip models.Trip, actorID string) Decision {
	if trip.HasParticipant(actorID) {
		return deny(models.DenyAlreadyJoined, "You are already on the list for this trip.")
	}
	if trip.HasCapacityLimit() && len(trip.Participants) >= trip.MaxParticipants {
		return deny(models.DenyTripFull, "All available spots are taken.")
	}
	return allow(models.TripDelta{
		AddToSet: map[string]interface{}{"participants": actorID},
	})
}

func decideCancel(trip models.Trip, actorID string) Decision {
	if !trip.HasParticipant(actorID) {
		return deny(models.DenyNotAJoiner, "You are not currently signed up for this trip.")
	}
	return allow(models.TripDelta{
		Pull: map[string]interface{}{"participants": actorID},
	})
}

func decideComplete(trip models.Trip, actorID string) Decision {
	if trip.IsCompleted() {
		return deny(models.DenyAlreadyCompleted, "This trip is already marked as complete.")
	}
	if !trip.HasParticipant(actorID) {
		return deny(models.DenyNotAParticipant, "Only participants can mark the trip as completed.")
	}
	return allow(models.TripDelta{
		Set: map[string]interface{}{
			"status":         models.TripStatusCompleted,
			"completionNote": models.CompletionNote,
		},
	})
}

func allow(delta models.TripDelta) Decision {
	return Decision{Allowed: true, Delta: delta}
}

func deny(reason models.DenyReason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

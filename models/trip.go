// File: /models/trip.go
package models

import (
	"strings"
	"time"
)

const (
	TripStatusUpcoming  = "upcoming"
	TripStatusCompleted = "completed"
)

// CompletionNote is the fixed note written when a trip is marked completed.
const CompletionNote = "Thank you for helping clean the ocean!"

// Trip is one document in the paddleTrips collection.
type Trip struct {
	ID              string     `json:"id" bson:"_id"`
	Title           string     `json:"title" bson:"title"`
	Location        string     `json:"location" bson:"location"`
	Organizer       string     `json:"organizer" bson:"organizer"`
	CleanupGoal     string     `json:"cleanup_goal" bson:"cleanupGoal"`
	Date            *time.Time `json:"date" bson:"date,omitempty"`
	MaxParticipants int        `json:"max_participants" bson:"maxParticipants"`
	Participants    []string   `json:"participants" bson:"participants"`
	Status          string     `json:"status" bson:"status"`
	CompletionNote  string     `json:"completion_note,omitempty" bson:"completionNote,omitempty"`
	Image           string     `json:"image" bson:"image"`
	CreatedAt       time.Time  `json:"created_at" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updatedAt"`
}

// NormalizedStatus lower-cases the stored status and defaults anything
// unrecognized (or empty) to upcoming.
func (t Trip) NormalizedStatus() string {
	status := strings.ToLower(t.Status)
	if status != TripStatusCompleted {
		return TripStatusUpcoming
	}
	return status
}

func (t Trip) IsCompleted() bool {
	return t.NormalizedStatus() == TripStatusCompleted
}

// HasCapacityLimit reports whether the trip caps attendance.
// Zero (or absent) maxParticipants means unlimited.
func (t Trip) HasCapacityLimit() bool {
	return t.MaxParticipants > 0
}

// AvailableSlots returns the number of open spots, or nil when the trip
// has no capacity limit.
func (t Trip) AvailableSlots() *int {
	if !t.HasCapacityLimit() {
		return nil
	}
	slots := t.MaxParticipants - len(t.Participants)
	if slots < 0 {
		slots = 0
	}
	return &slots
}

// IsFull is only meaningful when a capacity limit is set.
func (t Trip) IsFull() bool {
	slots := t.AvailableSlots()
	return slots != nil && *slots == 0
}

func (t Trip) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range t.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Display helpers substitute announcement placeholders for missing fields.

func (t Trip) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return "Paddle cleanup"
	}
	return t.Title
}

func (t Trip) DisplayLocation() string {
	if strings.TrimSpace(t.Location) == "" {
		return "To be announced"
	}
	return t.Location
}

func (t Trip) DisplayOrganizer() string {
	if strings.TrimSpace(t.Organizer) == "" {
		return "Unknown"
	}
	return t.Organizer
}

func (t Trip) DisplayCleanupGoal() string {
	if strings.TrimSpace(t.CleanupGoal) == "" {
		return "The organizer will share the goal on site."
	}
	return t.CleanupGoal
}

func (t Trip) DisplayDate() string {
	if t.Date == nil {
		return "Date to be announced"
	}
	return t.Date.Format(time.RFC1123)
}

// TripDelta is a field-level update applied to a single trip document.
// Participants only ever move through AddToSet/Pull so that concurrent
// joins and cancellations merge instead of overwriting each other.
type TripDelta struct {
	Set      map[string]interface{}
	AddToSet map[string]interface{}
	Pull     map[string]interface{}
}

func (d TripDelta) IsZero() bool {
	return len(d.Set) == 0 && len(d.AddToSet) == 0 && len(d.Pull) == 0
}

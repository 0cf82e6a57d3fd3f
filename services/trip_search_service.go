// File: /services/trip_search_service.go
package services

import (
	"iter"
	"strings"
	"sync"
	"time"

	"paddletrips-api/models"
)

// StatusFilter selects which trip statuses pass the projection.
type StatusFilter string

const (
	FilterUpcoming  StatusFilter = "upcoming"
	FilterCompleted StatusFilter = "completed"
	FilterAll       StatusFilter = "all"
)

// ParseStatusFilter normalizes user input; anything unrecognized falls
// back to the upcoming filter, the default view.
func ParseStatusFilter(value string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(value))) {
	case FilterCompleted:
		return FilterCompleted
	case FilterAll:
		return FilterAll
	default:
		return FilterUpcoming
	}
}

// NormalizeQuery prepares a raw search term for matching.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// FilterTrips projects the materialized view through a status filter and
// a free-text query. The sequence is lazy and restartable and preserves
// the input's date-ascending order. The query matches case-insensitively
// against title or location; an empty query passes every trip.
func FilterTrips(trips []models.Trip, filter StatusFilter, query string) iter.Seq[models.Trip] {
	term := NormalizeQuery(query)
	return func(yield func(models.Trip) bool) {
		for _, trip := range trips {
			if filter != FilterAll && trip.NormalizedStatus() != string(filter) {
				continue
			}
			if term != "" {
				titleMatch := strings.Contains(strings.ToLower(trip.Title), term)
				locationMatch := strings.Contains(strings.ToLower(trip.Location), term)
				if !titleMatch && !locationMatch {
					continue
				}
			}
			if !yield(trip) {
				return
			}
		}
	}
}

// DebounceWindow is the quiescence period before a search term takes
// effect, bounding recomputation while the user is still typing.
const DebounceWindow = 250 * time.Millisecond

// Debouncer is a cancellable delayed task: every Submit cancels any
// pending timer and schedules a new one, so only the final pending term
// fires.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	fire   func(term string)
}

func NewDebouncer(window time.Duration, fire func(term string)) *Debouncer {
	return &Debouncer{window: window, fire: fire}
}

// Submit schedules query to fire after the quiescence window, replacing
// any pending submission. The term is normalized at fire time.
func (d *Debouncer) Submit(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(NormalizeQuery(query))
	})
}

// Stop cancels any pending submission.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// TripSearchSession is one consumer's live projection over the
// materialized view: a status filter applied immediately and a text
// query applied only after typing pauses. onChange fires whenever the
// effective projection inputs change.
type TripSearchSession struct {
	view *TripSyncService

	mu       sync.RWMutex
	filter   StatusFilter
	query    string
	debounce *Debouncer
	onChange func()
}

func NewTripSearchSession(view *TripSyncService, onChange func()) *TripSearchSession {
	s := &TripSearchSession{
		view:     view,
		filter:   FilterUpcoming,
		onChange: onChange,
	}
	s.debounce = NewDebouncer(DebounceWindow, s.applyQuery)
	return s
}

// SetFilter switches the status filter; takes effect immediately.
func (s *TripSearchSession) SetFilter(filter StatusFilter) {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
}

// SetQuery feeds a keystroke; the term takes effect only after the
// debounce window elapses without another call.
func (s *TripSearchSession) SetQuery(query string) {
	s.debounce.Submit(query)
}

func (s *TripSearchSession) applyQuery(term string) {
	s.mu.Lock()
	s.query = term
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
}

// Results projects the current view through the filter and query in
// effect right now.
func (s *TripSearchSession) Results() iter.Seq[models.Trip] {
	s.mu.RLock()
	filter, query := s.filter, s.query
	s.mu.RUnlock()
	trips, _ := s.view.Snapshot()
	return FilterTrips(trips, filter, query)
}

// Close cancels any pending query submission.
func (s *TripSearchSession) Close() {
	s.debounce.Stop()
}

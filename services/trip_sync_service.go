// File: /services/trip_sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"paddletrips-api/models"
	"paddletrips-api/repositories"
)

// TripSyncService owns the local materialized view of the trip collection.
// It is the view's only writer: the change-stream loop and the manual
// Refresh both funnel into the same snapshot-replace path, and mutations
// go through the mutate-then-point-read protocol so the acting client
// observes its own write before the stream push arrives.
type TripSyncService struct {
	store  repositories.TripStore
	logger *zap.Logger

	mu      sync.RWMutex
	trips   []models.Trip
	stale   bool
	lastErr error

	subMu       sync.Mutex
	subscribers map[int]chan struct{}
	nextSubID   int

	retryInterval time.Duration
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewTripSyncService(store repositories.TripStore, logger *zap.Logger) *TripSyncService {
	return &TripSyncService{
		store:         store,
		logger:        logger,
		trips:         []models.Trip{},
		subscribers:   map[int]chan struct{}{},
		retryInterval: 3 * time.Second,
	}
}

// Start loads the initial snapshot and begins consuming the change
// stream. A failed initial load leaves an empty, stale view; the loop
// keeps retrying.
func (s *TripSyncService) Start(ctx context.Context) {
	if err := s.reload(ctx); err != nil {
		s.logger.Warn("initial trip snapshot failed", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
}

// Stop tears down the subscription loop.
func (s *TripSyncService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *TripSyncService) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		watcher, err := s.store.Watch(ctx)
		if err != nil {
			s.markStale(err)
			s.logger.Warn("trip subscription failed, retrying", zap.Error(err))
			if !sleepCtx(ctx, s.retryInterval) {
				return
			}
			continue
		}

		// Re-snapshot right after (re)subscribing so changes that landed
		// between the last view and the stream start are not missed.
		if err := s.reload(ctx); err != nil {
			s.logger.Warn("trip snapshot failed after subscribe", zap.Error(err))
		}

		for range watcher.Events() {
			if err := s.reload(ctx); err != nil {
				s.logger.Warn("trip snapshot failed on change event", zap.Error(err))
			}
		}

		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		if err := watcher.Close(closeCtx); err != nil {
			s.logger.Debug("trip watcher close", zap.Error(err))
		}
		cancelClose()

		if err := watcher.Err(); err != nil {
			s.markStale(err)
			s.logger.Warn("trip subscription ended, retrying", zap.Error(err))
		}
		if !sleepCtx(ctx, s.retryInterval) {
			return
		}
	}
}

// Refresh re-fetches the full ordered collection on demand and replaces
// the view, independent of the stream's delivery cadence.
func (s *TripSyncService) Refresh(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	return nil
}

// Apply mutates one remote trip document, then point-reads it and
// replaces its entry in the view. The point read is the only ordering
// guarantee relied on: the acting client sees its own write immediately
// even if the subscription push has not arrived yet.
func (s *TripSyncService) Apply(ctx context.Context, id string, delta models.TripDelta) (models.Trip, error) {
	if err := s.store.Update(ctx, id, delta); err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			return models.Trip{}, err
		}
		return models.Trip{}, fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}

	trip, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			return models.Trip{}, err
		}
		return models.Trip{}, fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}

	s.replaceEntry(trip)
	return trip, nil
}

// Snapshot returns a copy of the materialized view and its staleness.
// Stale means the subscription is down; the contents are last-known-good.
func (s *TripSyncService) Snapshot() ([]models.Trip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trips := make([]models.Trip, len(s.trips))
	copy(trips, s.trips)
	return trips, s.stale
}

// Trip looks up one entry in the materialized view.
func (s *TripSyncService) Trip(id string) (models.Trip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, trip := range s.trips {
		if trip.ID == id {
			return trip, true
		}
	}
	return models.Trip{}, false
}

// Subscribe registers for view-replacement notifications. The returned
// cancel func must be called on teardown.
func (s *TripSyncService) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *TripSyncService) reload(ctx context.Context) error {
	trips, err := s.store.List(ctx)
	if err != nil {
		s.markStale(err)
		return err
	}

	s.mu.Lock()
	s.trips = trips
	s.stale = false
	s.lastErr = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *TripSyncService) replaceEntry(trip models.Trip) {
	s.mu.Lock()
	replaced := false
	for i := range s.trips {
		if s.trips[i].ID == trip.ID {
			s.trips[i] = trip
			replaced = true
			break
		}
	}
	if !replaced {
		s.trips = append(s.trips, trip)
	}
	sortTripsByDate(s.trips)
	s.mu.Unlock()

	s.notify()
}

func (s *TripSyncService) markStale(err error) {
	s.mu.Lock()
	s.stale = true
	s.lastErr = err
	s.mu.Unlock()
}

func (s *TripSyncService) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// sortTripsByDate keeps the view in the collection's date-ascending
// order; undated trips sort first, matching the store's null ordering.
func sortTripsByDate(trips []models.Trip) {
	sort.SliceStable(trips, func(i, j int) bool {
		a, b := trips[i].Date, trips[j].Date
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

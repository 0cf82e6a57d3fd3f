// File: /services/mocks_test.go
package services_test

import (
	"context"
	"sort"
	"sync"

	"paddletrips-api/models"
	"paddletrips-api/repositories"
)

// memStore is an in-memory TripStore with injectable failures. Delta
// application mirrors the document store's semantics: Set overwrites
// whole fields, AddToSet and Pull merge participants element-wise.
type memStore struct {
	mu    sync.Mutex
	trips map[string]models.Trip

	failList   error
	failGet    error
	failInsert error
	failUpdate error
	failDelete error
	failWatch  error

	deleted  []string
	watchers []*memWatcher
}

func newMemStore(trips ...models.Trip) *memStore {
	s := &memStore{trips: map[string]models.Trip{}}
	for _, trip := range trips {
		s.trips[trip.ID] = trip
	}
	return s
}

var _ repositories.TripStore = (*memStore)(nil)

func (s *memStore) List(ctx context.Context) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}

	trips := make([]models.Trip, 0, len(s.trips))
	for _, trip := range s.trips {
		trips = append(trips, trip)
	}
	sort.SliceStable(trips, func(i, j int) bool {
		a, b := trips[i].Date, trips[j].Date
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		if a.Equal(*b) {
			return trips[i].ID < trips[j].ID
		}
		return a.Before(*b)
	})
	return trips, nil
}

func (s *memStore) Get(ctx context.Context, id string) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return models.Trip{}, s.failGet
	}
	trip, ok := s.trips[id]
	if !ok {
		return models.Trip{}, models.ErrTripNotFound
	}
	return trip, nil
}

func (s *memStore) Insert(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	if trip.Participants == nil {
		trip.Participants = []string{}
	}
	s.trips[trip.ID] = *trip
	return nil
}

func (s *memStore) Update(ctx context.Context, id string, delta models.TripDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	trip, ok := s.trips[id]
	if !ok {
		return models.ErrTripNotFound
	}

	for field, value := range delta.Set {
		str, _ := value.(string)
		switch field {
		case "status":
			trip.Status = str
		case "completionNote":
			trip.CompletionNote = str
		case "image":
			trip.Image = str
		}
	}
	if value, ok := delta.AddToSet["participants"]; ok {
		id, _ := value.(string)
		if !trip.HasParticipant(id) {
			trip.Participants = append(trip.Participants, id)
		}
	}
	if value, ok := delta.Pull["participants"]; ok {
		id, _ := value.(string)
		kept := trip.Participants[:0:0]
		for _, existing := range trip.Participants {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		trip.Participants = kept
	}

	s.trips[id] = trip
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.trips, id)
	return nil
}

func (s *memStore) Watch(ctx context.Context) (repositories.TripWatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWatch != nil {
		return nil, s.failWatch
	}
	w := &memWatcher{events: make(chan struct{}, 1)}
	s.watchers = append(s.watchers, w)
	go func() {
		<-ctx.Done()
		w.Close(context.Background())
	}()
	return w, nil
}

// emit simulates a remote change notification to every open watcher.
func (s *memStore) emit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		w.emit()
	}
}

type memWatcher struct {
	mu     sync.Mutex
	events chan struct{}
	closed bool
}

func (w *memWatcher) Events() <-chan struct{} { return w.events }

func (w *memWatcher) Err() error { return nil }

func (w *memWatcher) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	return nil
}

func (w *memWatcher) emit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// fakeBlobStore records uploads and can be told to fail.
type fakeBlobStore struct {
	mu       sync.Mutex
	uploads  map[string]string // key -> content type
	failWith error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploads: map[string]string{}}
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.uploads[key] = contentType
	return nil
}

func (f *fakeBlobStore) DownloadURL(key string) string {
	return "https://blobs.test/trip-images/" + key
}

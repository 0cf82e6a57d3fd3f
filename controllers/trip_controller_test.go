// File: /controllers/trip_controller_test.go
package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paddletrips-api/controllers"
	"paddletrips-api/models"
	"paddletrips-api/repositories"
	"paddletrips-api/services"
)

// stubStore is a minimal in-memory TripStore for handler tests.
type stubStore struct {
	mu    sync.Mutex
	trips map[string]models.Trip
}

var _ repositories.TripStore = (*stubStore)(nil)

func newStubStore(trips ...models.Trip) *stubStore {
	s := &stubStore{trips: map[string]models.Trip{}}
	for _, trip := range trips {
		s.trips[trip.ID] = trip
	}
	return s
}

func (s *stubStore) List(ctx context.Context) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trips := make([]models.Trip, 0, len(s.trips))
	for _, trip := range s.trips {
		trips = append(trips, trip)
	}
	return trips, nil
}

func (s *stubStore) Get(ctx context.Context, id string) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[id]
	if !ok {
		return models.Trip{}, models.ErrTripNotFound
	}
	return trip, nil
}

func (s *stubStore) Insert(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = *trip
	return nil
}

func (s *stubStore) Update(ctx context.Context, id string, delta models.TripDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
		actor, _ := value.(string)
		if !trip.HasParticipant(actor) {
			trip.Participants = append(trip.Participants, actor)
		}
	}
	if value, ok := delta.Pull["participants"]; ok {
		actor, _ := value.(string)
		kept := trip.Participants[:0:0]
		for _, existing := range trip.Participants {
			if existing != actor {
				kept = append(kept, existing)
			}
		}
		trip.Participants = kept
	}
	s.trips[id] = trip
	return nil
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trips, id)
	return nil
}

func (s *stubStore) Watch(ctx context.Context) (repositories.TripWatcher, error) {
	w := &stubWatcher{events: make(chan struct{})}
	go func() {
		<-ctx.Done()
		close(w.events)
	}()
	return w, nil
}

type stubWatcher struct{ events chan struct{} }

func (w *stubWatcher) Events() <-chan struct{}        { return w.events }
func (w *stubWatcher) Err() error                     { return nil }
func (w *stubWatcher) Close(ctx context.Context) error { return nil }

type blobRecorder struct {
	mu      sync.Mutex
	uploads []string
}

func (b *blobRecorder) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, key)
	return nil
}

func (b *blobRecorder) DownloadURL(key string) string {
	return "https://blobs.test/trip-images/" + key
}

func tripFixtures() []models.Trip {
	sept := time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC)
	oct := time.Date(2026, 10, 3, 10, 0, 0, 0, time.UTC)
	return []models.Trip{
		{
			ID: "t1", Title: "Bay Cleanup", Location: "North Pier", Date: &sept,
			MaxParticipants: 2, Participants: []string{"u1"}, Status: models.TripStatusUpcoming,
		},
		{
			ID: "t2", Title: "Harbor Day", Location: "East Harbor", Date: &oct,
			Participants: []string{"u1", "u2"}, Status: models.TripStatusCompleted,
		},
	}
}

// newTestRouter wires the trip routes the way the API registers them,
// with a stub auth layer that injects the given actor id.
func newTestRouter(t *testing.T, actorID string, trips ...models.Trip) (*gin.Engine, *stubStore, *services.TripSyncService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newStubStore(trips...)
	view := services.NewTripSyncService(store, zap.NewNop())
	require.NoError(t, view.Refresh(context.Background()))
	uploader := services.NewTripUploadService(store, view, &blobRecorder{}, zap.NewNop())
	tc := controllers.NewTripController(view, uploader)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if actorID != "" {
			c.Set("user_id", actorID)
		}
	})
	router.GET("/trips", tc.GetTrips)
	router.POST("/trips", tc.CreateTrip)
	router.POST("/trips/refresh", tc.RefreshTrips)
	router.GET("/trips/:id", tc.GetTrip)
	router.POST("/trips/:id/join", tc.JoinTrip)
	router.DELETE("/trips/:id/cancel", tc.CancelTrip)
	router.POST("/trips/:id/complete", tc.CompleteTrip)
	return router, store, view
}

func doJSON(t *testing.T, router *gin.Engine, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func listedIDs(t *testing.T, body map[string]interface{}) []string {
	t.Helper()
	raw, ok := body["trips"].([]interface{})
	require.True(t, ok)
	ids := make([]string, 0, len(raw))
	for _, entry := range raw {
		trip, ok := entry.(map[string]interface{})
		require.True(t, ok)
		ids = append(ids, trip["id"].(string))
	}
	return ids
}

func TestGetTripsDefaultsToUpcoming(t *testing.T) {
	router, _, _ := newTestRouter(t, "", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodGet, "/trips")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"t1"}, listedIDs(t, body))
	assert.Equal(t, false, body["stale"])
}

func TestGetTripsFilterAndSearch(t *testing.T) {
	router, _, _ := newTestRouter(t, "", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodGet, "/trips?status=all&q=harbor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"t2"}, listedIDs(t, body))
}

func TestGetTripIncludesDerivedFields(t *testing.T) {
	router, _, _ := newTestRouter(t, "u1", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodGet, "/trips/t1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["participants_count"])
	assert.Equal(t, true, body["has_capacity_limit"])
	assert.Equal(t, float64(1), body["available_slots"])
	assert.Equal(t, false, body["is_full"])
	assert.Equal(t, true, body["joined"])
}

func TestGetTripNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, "", tripFixtures()...)

	rec, _ := doJSON(t, router, http.MethodGet, "/trips/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinRequiresAuthentication(t *testing.T) {
	router, _, _ := newTestRouter(t, "", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodPost, "/trips/t1/join")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(models.DenyNotAuthenticated), body["reason"])
	assert.Contains(t, body["error"], "Log in or create an account")
}

func TestJoinSucceedsAndReflectsWrite(t *testing.T) {
	router, store, view := newTestRouter(t, "u2", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodPost, "/trips/t1/join")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You are in! See you on the water.", body["message"])

	// Read-your-writes: the view reflects the join without a stream push.
	trip, ok := view.Trip("t1")
	require.True(t, ok)
	assert.True(t, trip.HasParticipant("u2"))
	assert.True(t, trip.IsFull())

	stored, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, stored.HasParticipant("u2"))
}

func TestJoinFullTripConflicts(t *testing.T) {
	trips := tripFixtures()
	trips[0].Participants = []string{"u1", "u5"}
	router, _, _ := newTestRouter(t, "u2", trips...)

	rec, body := doJSON(t, router, http.MethodPost, "/trips/t1/join")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(models.DenyTripFull), body["reason"])
	assert.Equal(t, "All available spots are taken.", body["error"])
}

func TestCancelWhenNotJoined(t *testing.T) {
	router, _, _ := newTestRouter(t, "u9", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodDelete, "/trips/t1/cancel")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(models.DenyNotAJoiner), body["reason"])
}

func TestCompleteTrip(t *testing.T) {
	router, _, view := newTestRouter(t, "u1", tripFixtures()...)

	rec, body := doJSON(t, router, http.MethodPost, "/trips/t1/complete")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Trip marked as completed.", body["message"])

	trip, ok := view.Trip("t1")
	require.True(t, ok)
	assert.True(t, trip.IsCompleted())
	assert.Equal(t, models.CompletionNote, trip.CompletionNote)

	// A second completion is refused.
	rec, body = doJSON(t, router, http.MethodPost, "/trips/t1/complete")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(models.DenyAlreadyCompleted), body["reason"])
}

func TestCreateTripValidationResponse(t *testing.T) {
	router, _, _ := newTestRouter(t, "u1")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("title", "Bay Cleanup"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/trips", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, fields, "title")
	for _, field := range []string{"location", "organizer", "max_participants", "date", "image"} {
		assert.Contains(t, fields, field)
	}
}

func TestCreateTripPublishes(t *testing.T) {
	router, _, view := newTestRouter(t, "u1")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("title", "Bay Cleanup"))
	require.NoError(t, writer.WriteField("location", "North Pier"))
	require.NoError(t, writer.WriteField("organizer", "marta@example.com"))
	require.NoError(t, writer.WriteField("cleanup_goal", "20 bags"))
	require.NoError(t, writer.WriteField("max_participants", "12"))
	require.NoError(t, writer.WriteField("date", time.Now().AddDate(0, 0, 7).Format("2006-01-02")))
	part, err := writer.CreateFormFile("image", "cover.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/trips", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Trip uploaded successfully!", body["message"])

	created, ok := body["trip"].(map[string]interface{})
	require.True(t, ok)
	id := created["id"].(string)
	assert.Contains(t, created["image"], id)

	trip, ok := view.Trip(id)
	require.True(t, ok)
	assert.Equal(t, "Bay Cleanup", trip.Title)
	assert.NotEmpty(t, trip.Image)
}

func TestRefreshTripsPicksUpRemoteChanges(t *testing.T) {
	router, store, _ := newTestRouter(t, "", tripFixtures()...)

	require.NoError(t, store.Insert(context.Background(), &models.Trip{
		ID: "t3", Title: "Creek Crawl", Status: models.TripStatusUpcoming,
	}))

	rec, body := doJSON(t, router, http.MethodPost, "/trips/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"t1", "t3"}, listedIDs(t, body))
}

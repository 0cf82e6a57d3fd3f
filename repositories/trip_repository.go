// File: /repositories/trip_repository.go
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"paddletrips-api/models"
)

// TripStore is the document-store surface the sync layer depends on.
// Updates are expressed as field deltas; participants only ever change
// through the set-add/set-remove markers so concurrent actors merge.
type TripStore interface {
	List(ctx context.Context) ([]models.Trip, error)
	Get(ctx context.Context, id string) (models.Trip, error)
	Insert(ctx context.Context, trip *models.Trip) error
	Update(ctx context.Context, id string, delta models.TripDelta) error
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context) (TripWatcher, error)
}

// TripWatcher delivers change notifications for the trip collection.
// Every received event means "the collection changed, re-snapshot".
type TripWatcher interface {
	// Events is closed when the underlying stream ends.
	Events() <-chan struct{}
	// Err reports why the stream ended, nil on clean close.
	Err() error
	Close(ctx context.Context) error
}

type TripRepository struct {
	collection *mongo.Collection
}

func NewTripRepository(db *mongo.Database) *TripRepository {
	return &TripRepository{collection: db.Collection("paddleTrips")}
}

var _ TripStore = (*TripRepository)(nil)

// List returns the full collection ordered by date ascending.
func (r *TripRepository) List(ctx context.Context) ([]models.Trip, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	trips := []models.Trip{}
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("failed to decode trips: %w", err)
	}
	return trips, nil
}

func (r *TripRepository) Get(ctx context.Context, id string) (models.Trip, error) {
	var trip models.Trip
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&trip)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Trip{}, models.ErrTripNotFound
	}
	if err != nil {
		return models.Trip{}, fmt.Errorf("failed to read trip %s: %w", id, err)
	}
	return trip, nil
}

func (r *TripRepository) Insert(ctx context.Context, trip *models.Trip) error {
	now := time.Now().UTC()
	trip.CreatedAt = now
	trip.UpdatedAt = now
	if trip.Participants == nil {
		trip.Participants = []string{}
	}

	if _, err := r.collection.InsertOne(ctx, trip); err != nil {
		return fmt.Errorf("failed to insert trip %s: %w", trip.ID, err)
	}
	return nil
}

// Update applies a field delta to one trip document. Set fields overwrite
// whole values (last writer wins); AddToSet and Pull merge element-wise.
func (r *TripRepository) Update(ctx context.Context, id string, delta models.TripDelta) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for field, value := range delta.Set {
		set[field] = value
	}

	update := bson.M{"$set": set}
	if len(delta.AddToSet) > 0 {
		update["$addToSet"] = bson.M(delta.AddToSet)
	}
	if len(delta.Pull) > 0 {
		update["$pull"] = bson.M(delta.Pull)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update trip %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return models.ErrTripNotFound
	}
	return nil
}

// Delete removes a trip document. Normal flow never deletes trips; this
// exists for the creation workflow's compensating rollback.
func (r *TripRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete trip %s: %w", id, err)
	}
	return nil
}

// Watch opens a change stream over the collection. Insert, update and
// delete events from any client all surface as re-snapshot signals.
func (r *TripRepository) Watch(ctx context.Context) (TripWatcher, error) {
	stream, err := r.collection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("failed to watch trips: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	w := &changeWatcher{
		stream: stream,
		cancel: cancel,
		events: make(chan struct{}, 1),
	}
	go w.pump(streamCtx)
	return w, nil
}

type changeWatcher struct {
	stream *mongo.ChangeStream
	cancel context.CancelFunc
	events chan struct{}
	err    error
}

func (w *changeWatcher) pump(ctx context.Context) {
	defer close(w.events)
	for w.stream.Next(ctx) {
		// Coalesce: one pending signal is enough to trigger a re-snapshot.
		select {
		case w.events <- struct{}{}:
		default:
		}
	}
	w.err = w.stream.Err()
}

func (w *changeWatcher) Events() <-chan struct{} {
	return w.events
}

func (w *changeWatcher) Err() error {
	return w.err
}

func (w *changeWatcher) Close(ctx context.Context) error {
	w.cancel()
	return w.stream.Close(ctx)
}

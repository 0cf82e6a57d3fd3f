// File: /services/trip_upload_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paddletrips-api/models"
	"paddletrips-api/repositories"
)

// CreationState tracks where a trip creation attempt ended up.
type CreationState string

const (
	StateDraft          CreationState = "draft"
	StateValidating     CreationState = "validating"
	StateCreating       CreationState = "creating"
	StateUploadingAsset CreationState = "uploading_asset"
	StatePublished      CreationState = "published"
	StateRolledBack     CreationState = "rolled_back"
)

// CoverAsset is the selected cover image for a new trip.
type CoverAsset struct {
	FileName string
	MIMEType string
	URI      string
	Data     []byte
}

// TripForm carries the raw creation input. MaxParticipants arrives as
// text and is parsed during validation.
type TripForm struct {
	Title           string
	Location        string
	Organizer       string
	CleanupGoal     string
	MaxParticipants string
	Date            time.Time
	Asset           *CoverAsset
}

// TripUploadService publishes new trips in two phases: commit the trip
// document with an empty image, then upload the cover asset keyed by the
// new trip's id and patch the image field. A phase-two failure rolls the
// document back so users never see a published trip without its cover.
type TripUploadService struct {
	store  repositories.TripStore
	view   *TripSyncService
	blobs  BlobStore
	logger *zap.Logger
	now    func() time.Time
}

func NewTripUploadService(store repositories.TripStore, view *TripSyncService, blobs BlobStore, logger *zap.Logger) *TripUploadService {
	return &TripUploadService{
		store:  store,
		view:   view,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates the form and publishes the trip. It returns the
// published trip and the final creation state. Validation failures return
// models.ValidationErrors; a failed upload or image patch returns
// models.PartialCommitError after the compensating delete.
func (s *TripUploadService) Create(ctx context.Context, form TripForm) (models.Trip, CreationState, error) {
	maxParticipants, verrs := s.validate(form)
	if len(verrs) > 0 {
		return models.Trip{}, StateDraft, verrs
	}

	date := form.Date
	trip := models.Trip{
		ID:              uuid.New().String(),
		Title:           strings.TrimSpace(form.Title),
		Location:        strings.TrimSpace(form.Location),
		Organizer:       strings.TrimSpace(form.Organizer),
		CleanupGoal:     strings.TrimSpace(form.CleanupGoal),
		Date:            &date,
		MaxParticipants: maxParticipants,
		Participants:    []string{},
		Status:          models.TripStatusUpcoming,
		Image:           "",
	}

	// Phase 1: commit the document with an empty image.
	if err := s.store.Insert(ctx, &trip); err != nil {
		return models.Trip{}, StateDraft, fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}

	// Phase 2: upload the cover asset and patch the image field.
	published, err := s.attachCover(ctx, trip.ID, form.Asset)
	if err != nil {
		s.rollback(trip.ID)
		return models.Trip{}, StateRolledBack, &models.PartialCommitError{TripID: trip.ID, Err: err}
	}

	return published, StatePublished, nil
}

func (s *TripUploadService) attachCover(ctx context.Context, tripID string, asset *CoverAsset) (models.Trip, error) {
	extension, contentType := InferAssetMetadata(asset)
	key := fmt.Sprintf("tripImages/%s.%s", tripID, extension)

	if err := s.blobs.Upload(ctx, key, asset.Data, contentType); err != nil {
		return models.Trip{}, fmt.Errorf("cover upload failed: %w", err)
	}

	// Patch through the sync layer so the view reflects the published
	// trip immediately.
	trip, err := s.view.Apply(ctx, tripID, models.TripDelta{
		Set: map[string]interface{}{"image": s.blobs.DownloadURL(key)},
	})
	if err != nil {
		return models.Trip{}, fmt.Errorf("image patch failed: %w", err)
	}
	return trip, nil
}

func (s *TripUploadService) validate(form TripForm) (int, models.ValidationErrors) {
	verrs := models.ValidationErrors{}

	if strings.TrimSpace(form.Title) == "" {
		verrs["title"] = "Please add a descriptive trip title."
	}
	if strings.TrimSpace(form.Location) == "" {
		verrs["location"] = "Let volunteers know where to meet."
	}
	if strings.TrimSpace(form.CleanupGoal) == "" {
		verrs["cleanup_goal"] = "Share a cleanup goal so people know the mission."
	}
	if strings.TrimSpace(form.Organizer) == "" {
		verrs["organizer"] = "Add organizer contact details."
	}

	maxParticipants := 0
	raw := strings.TrimSpace(form.MaxParticipants)
	if raw == "" {
		verrs["max_participants"] = "Tell us how many paddlers you can host."
	} else {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			verrs["max_participants"] = "Use a positive number for max participants."
		} else {
			maxParticipants = parsed
		}
	}

	// Date-only comparison: time of day is ignored.
	today := midnightOf(s.now())
	if form.Date.IsZero() || midnightOf(form.Date).Before(today) {
		verrs["date"] = "Pick a date that is today or later."
	}

	if form.Asset == nil || len(form.Asset.Data) == 0 {
		verrs["image"] = "A cover photo helps volunteers spot your trip."
	}

	return maxParticipants, verrs
}

func (s *TripUploadService) rollback(tripID string) {
	// Best effort: a failed delete is logged and swallowed so the caller
	// sees a single failure regardless of which sub-step broke.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, tripID); err != nil {
		s.logger.Error("failed to roll back trip after partial commit",
			zap.String("trip_id", tripID), zap.Error(err))
	}
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

var uriExtensionPattern = regexp.MustCompile(`\.([a-zA-Z0-9]+)(\?|$)`)

// InferAssetMetadata resolves the storage extension and content type for
// a cover asset: declared filename extension first, then MIME subtype,
// then an extension parsed from the asset's URI, else the jpg default.
func InferAssetMetadata(asset *CoverAsset) (extension, contentType string) {
	const fallbackExtension = "jpg"

	if asset == nil {
		return fallbackExtension, "image/jpeg"
	}

	if idx := strings.LastIndex(asset.FileName, "."); idx >= 0 && idx < len(asset.FileName)-1 {
		extension = asset.FileName[idx+1:]
	}
	if extension == "" {
		if idx := strings.LastIndex(asset.MIMEType, "/"); idx >= 0 && idx < len(asset.MIMEType)-1 {
			extension = asset.MIMEType[idx+1:]
		}
	}
	if extension == "" {
		if match := uriExtensionPattern.FindStringSubmatch(asset.URI); match != nil {
			extension = match[1]
		}
	}
	if extension == "" {
		extension = fallbackExtension
	}

	extension = strings.ToLower(extension)
	if extension == "jpeg" {
		extension = "jpg"
	}

	switch {
	case asset.MIMEType != "":
		contentType = asset.MIMEType
	case extension == "png":
		contentType = "image/png"
	default:
		contentType = "image/jpeg"
	}

	return extension, contentType
}

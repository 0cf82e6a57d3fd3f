// File: /controllers/trip_controller.go
package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paddletrips-api/models"
	"paddletrips-api/services"
)

type TripController struct {
	view     *services.TripSyncService
	uploader *services.TripUploadService
}

func NewTripController(view *services.TripSyncService, uploader *services.TripUploadService) *TripController {
	return &TripController{view: view, uploader: uploader}
}

// TripView is a trip plus its derived capacity fields.
type TripView struct {
	models.Trip
	ParticipantsCount int    `json:"participants_count"`
	HasCapacityLimit  bool   `json:"has_capacity_limit"`
	AvailableSlots    *int   `json:"available_slots"`
	IsFull            bool   `json:"is_full"`
	StatusLabel       string `json:"status_label"`
}

// TripDetail adds the requesting actor's membership status.
type TripDetail struct {
	TripView
	Joined bool `json:"joined"`
}

func newTripView(trip models.Trip) TripView {
	return TripView{
		Trip:              trip,
		ParticipantsCount: len(trip.Participants),
		HasCapacityLimit:  trip.HasCapacityLimit(),
		AvailableSlots:    trip.AvailableSlots(),
		IsFull:            trip.IsFull(),
		StatusLabel:       trip.NormalizedStatus(),
	}
}

// GetTrips returns the filtered trip list from the materialized view.
// Status defaults to upcoming; q matches title or location. When the
// subscription is down the last-known view is served with stale=true.
func (tc *TripController) GetTrips(c *gin.Context) {
	filter := services.ParseStatusFilter(c.DefaultQuery("status", "upcoming"))
	query := c.Query("q")

	trips, stale := tc.view.Snapshot()

	results := []TripView{}
	for trip := range services.FilterTrips(trips, filter, query) {
		results = append(results, newTripView(trip))
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": results,
		"stale": stale,
	})
}

// RefreshTrips re-fetches the full collection on demand (pull-to-refresh).
func (tc *TripController) RefreshTrips(c *gin.Context) {
	if err := tc.view.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Unable to refresh trips right now",
			"message": "Please try again later.",
		})
		return
	}

	tc.GetTrips(c)
}

func (tc *TripController) GetTrip(c *gin.Context) {
	tripID := c.Param("id")

	trip, ok := tc.view.Trip(tripID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return
	}

	actorID := c.GetString("user_id")
	c.JSON(http.StatusOK, TripDetail{
		TripView: newTripView(trip),
		Joined:   trip.HasParticipant(actorID),
	})
}

func (tc *TripController) JoinTrip(c *gin.Context) {
	tc.act(c, services.ActionJoin, "You are in! See you on the water.")
}

func (tc *TripController) CancelTrip(c *gin.Context) {
	tc.act(c, services.ActionCancel, "You have been removed from the attendee list.")
}

func (tc *TripController) CompleteTrip(c *gin.Context) {
	tc.act(c, services.ActionComplete, "Trip marked as completed.")
}

// act evaluates the participation engine against the locally known trip,
// applies the resulting delta through the sync layer, and returns the
// freshly read trip.
func (tc *TripController) act(c *gin.Context, action services.TripAction, successMessage string) {
	tripID := c.Param("id")
	actorID := c.GetString("user_id")

	trip, ok := tc.view.Trip(tripID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return
	}

	decision := services.Decide(trip, actorID, action)
	if !decision.Allowed {
		c.JSON(denialStatus(decision.Reason), gin.H{
			"error":  decision.Message,
			"reason": decision.Reason,
		})
		return
	}

	updated, err := tc.view.Apply(c.Request.Context(), tripID, decision.Delta)
	if err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "We could not update the trip",
			"message": "Please try again.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": successMessage,
		"trip":    newTripView(updated),
	})
}

func denialStatus(reason models.DenyReason) int {
	switch reason {
	case models.DenyNotAuthenticated:
		return http.StatusUnauthorized
	case models.DenyTripFull, models.DenyAlreadyJoined, models.DenyAlreadyCompleted:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// CreateTrip publishes a new trip from a multipart form: text fields plus
// the cover image file.
func (tc *TripController) CreateTrip(c *gin.Context) {
	form := services.TripForm{
		Title:           c.PostForm("title"),
		Location:        c.PostForm("location"),
		Organizer:       c.PostForm("organizer"),
		CleanupGoal:     c.PostForm("cleanup_goal"),
		MaxParticipants: c.PostForm("max_participants"),
	}

	if rawDate := c.PostForm("date"); rawDate != "" {
		if date, err := time.Parse("2006-01-02", rawDate); err == nil {
			form.Date = date
		}
	}

	if fileHeader, err := c.FormFile("image"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read cover image"})
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read cover image"})
			return
		}
		form.Asset = &services.CoverAsset{
			FileName: fileHeader.Filename,
			MIMEType: fileHeader.Header.Get("Content-Type"),
			Data:     data,
		}
	}

	trip, _, err := tc.uploader.Create(c.Request.Context(), form)
	if err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "Validation failed",
				"fields": verrs,
			})
			return
		}

		var partial *models.PartialCommitError
		if errors.As(err, &partial) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "Upload Failed",
				"message": "We couldn't publish your trip right now. Please check your connection and try again.",
			})
			return
		}

		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Upload Failed",
			"message": "We couldn't publish your trip right now. Please check your connection and try again.",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Trip uploaded successfully!",
		"trip":    newTripView(trip),
	})
}

// LiveTrips streams the filtered trip list over SSE; the client receives
// a fresh snapshot whenever the materialized view is replaced or the
// debounced search term takes effect.
func (tc *TripController) LiveTrips(c *gin.Context) {
	filter := services.ParseStatusFilter(c.DefaultQuery("status", "upcoming"))
	query := c.Query("q")

	updates := make(chan struct{}, 1)
	session := services.NewTripSearchSession(tc.view, func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer session.Close()

	session.SetFilter(filter)
	if query != "" {
		session.SetQuery(query)
	}

	viewChanges, unsubscribe := tc.view.Subscribe()
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	sendSnapshot := func() {
		results := []TripView{}
		for trip := range session.Results() {
			results = append(results, newTripView(trip))
		}
		c.SSEvent("trips", results)
		c.Writer.Flush()
	}

	sendSnapshot()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-viewChanges:
			sendSnapshot()
		case <-updates:
			sendSnapshot()
		}
	}
}

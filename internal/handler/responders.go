package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"RescueNet/internal/models"
	"RescueNet/pkg/response"
)

type availabilityBody struct {
	Available *bool `json:"available" binding:"required"`
}

// handleSetAvailability flips the responder's on-duty flag. The row is
// created on first contact so a responder can go available before ever
// pinging a location.
func (h *Handlers) handleSetAvailability(c *gin.Context) {
	var body availabilityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	responder := models.Responder{
		UserID:    currentUserID(c),
		Available: *body.Available,
	}
	err := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"available", "updated_at"}),
		}).
		Create(&responder).Error
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, "update availability failed")
		return
	}
	response.Success(c, "availability updated", gin.H{"available": *body.Available})
}

type locationBody struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

func (h *Handlers) handleUpdateLocation(c *gin.Context) {
	var body locationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	responder := models.Responder{
		UserID:     currentUserID(c),
		Latitude:   body.Latitude,
		Longitude:  body.Longitude,
		LocationAt: now,
	}
	err := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "location_at", "updated_at"}),
		}).
		Create(&responder).Error
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, "update location failed")
		return
	}
	response.Success(c, "location updated", gin.H{"location_at": now})
}

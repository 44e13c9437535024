package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"RescueNet/internal/dispatch"
	"RescueNet/internal/models"
	"RescueNet/pkg/response"
)

type createRequestBody struct {
	Category    string  `json:"category" binding:"required"`
	Latitude    float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64 `json:"longitude" binding:"min=-180,max=180"`
	Description string  `json:"description"`
	ProofRef    string  `json:"proof_ref"`
}

func (h *Handlers) handleCreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.svc.Create(c.Request.Context(), dispatch.CreateInput{
		RequesterID: currentUserID(c),
		Category:    models.Category(body.Category),
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Description: body.Description,
		ProofRef:    body.ProofRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Body{Code: 0, Message: "created", Data: req})
}

func (h *Handlers) handleRequestDetails(c *gin.Context) {
	details, err := h.svc.GetDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", details)
}

func (h *Handlers) handleAcceptRequest(c *gin.Context) {
	req, err := h.svc.Accept(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "accepted", req)
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (h *Handlers) handleRejectRequest(c *gin.Context) {
	var body rejectBody
	// the body is optional; a bare POST is a rejection without a reason
	_ = c.ShouldBindJSON(&body)

	if err := h.svc.Reject(c.Request.Context(), c.Param("id"), currentUserID(c), body.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "rejected", nil)
}

type statusBody struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handlers) handleUpdateStatus(c *gin.Context) {
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), currentUserID(c), models.RequestStatus(body.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "updated", req)
}

type feedbackBody struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func (h *Handlers) handleAddFeedback(c *gin.Context) {
	var body feedbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	fb, err := h.svc.AddFeedback(c.Request.Context(), c.Param("id"), currentUserID(c), body.Rating, body.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "feedback saved", fb)
}

package handlers

import (
	"net/http"

	"alertd/internal/models"
	"alertd/internal/services"
	"alertd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type HeartbeatHandler struct {
	service *services.HeartbeatService
}

func NewHeartbeatHandler(service *services.HeartbeatService) *HeartbeatHandler {
	return &HeartbeatHandler{service: service}
}

func (h *HeartbeatHandler) Receive(c *gin.Context) {
	var hb models.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if hb.Origin == "" {
		response.Error(c, http.StatusBadRequest, "origin is required")
		return
	}
	stored, err := h.service.Receive(c.Request.Context(), &hb)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, stored)
}

func (h *HeartbeatHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	hb, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, hb)
}

func (h *HeartbeatHandler) List(c *gin.Context) {
	heartbeats, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"heartbeats": heartbeats, "total": len(heartbeats)})
}

func (h *HeartbeatHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

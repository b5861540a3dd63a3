package handlers

import (
	"net/http"
	"time"

	"alertd/internal/middleware"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BlackoutHandler struct {
	blackouts *repository.BlackoutRepository
}

func NewBlackoutHandler(blackouts *repository.BlackoutRepository) *BlackoutHandler {
	return &BlackoutHandler{blackouts: blackouts}
}

func (h *BlackoutHandler) Create(c *gin.Context) {
	var blackout models.Blackout
	if err := c.ShouldBindJSON(&blackout); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if blackout.Environment == "" {
		response.Error(c, http.StatusBadRequest, "environment is required")
		return
	}

	now := time.Now()
	blackout.ID = uuid.New()
	blackout.User = middleware.LoginFrom(c)
	blackout.CreateTime = now
	if blackout.StartTime.IsZero() {
		blackout.StartTime = now
	}
	if blackout.EndTime.IsZero() {
		duration := blackout.Duration
		if duration <= 0 {
			duration = 3600
		}
		blackout.EndTime = blackout.StartTime.Add(time.Duration(duration) * time.Second)
	}
	blackout.Duration = int(blackout.EndTime.Sub(blackout.StartTime).Seconds())
	blackout.Priority = blackout.DerivePriority()

	if err := h.blackouts.Create(c.Request.Context(), &blackout); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, blackout)
}

func (h *BlackoutHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	blackout, err := h.blackouts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, blackout)
}

func (h *BlackoutHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	blackouts, total, err := h.blackouts.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	type windowed struct {
		models.Blackout
		Status string `json:"status"`
	}
	list := make([]windowed, 0, len(blackouts))
	for _, b := range blackouts {
		list = append(list, windowed{Blackout: b, Status: b.WindowStatus(now)})
	}
	response.Success(c, gin.H{
		"blackouts": list,
		"total":     total,
		"page":      page,
		"size":      pageSize,
	})
}

func (h *BlackoutHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var blackout models.Blackout
	if err := c.ShouldBindJSON(&blackout); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	blackout.ID = id
	blackout.Priority = blackout.DerivePriority()
	if !blackout.StartTime.IsZero() && !blackout.EndTime.IsZero() {
		blackout.Duration = int(blackout.EndTime.Sub(blackout.StartTime).Seconds())
	}
	if err := h.blackouts.Update(c.Request.Context(), &blackout); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, blackout)
}

func (h *BlackoutHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.blackouts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

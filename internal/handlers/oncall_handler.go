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

type OnCallHandler struct {
	onCalls *repository.OnCallRepository
}

func NewOnCallHandler(onCalls *repository.OnCallRepository) *OnCallHandler {
	return &OnCallHandler{onCalls: onCalls}
}

func (h *OnCallHandler) Create(c *gin.Context) {
	var entry models.OnCall
	if err := c.ShouldBindJSON(&entry); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(entry.UserIDs) == 0 && len(entry.GroupIDs) == 0 {
		response.Error(c, http.StatusBadRequest, "at least one user or group is required")
		return
	}
	entry.ID = uuid.New()
	entry.User = middleware.LoginFrom(c)
	entry.CreateTime = time.Now()
	if err := h.onCalls.Create(c.Request.Context(), &entry); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *OnCallHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	entry, err := h.onCalls.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *OnCallHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	entries, total, err := h.onCalls.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"onCalls": entries,
		"total":   total,
		"page":    page,
		"size":    pageSize,
	})
}

func (h *OnCallHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var entry models.OnCall
	if err := c.ShouldBindJSON(&entry); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	entry.ID = id
	if err := h.onCalls.Update(c.Request.Context(), &entry); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *OnCallHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.onCalls.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

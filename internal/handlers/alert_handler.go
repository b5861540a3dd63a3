package handlers

import (
	"context"
	"net/http"
	"time"

	"alertd/internal/middleware"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/services"
	"alertd/pkg/errors"
	"alertd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AlertHandler struct {
	service *services.AlertService
	alerts  *repository.AlertRepository
	notes   *repository.NoteRepository
}

func NewAlertHandler(service *services.AlertService, alerts *repository.AlertRepository, notes *repository.NoteRepository) *AlertHandler {
	return &AlertHandler{service: service, alerts: alerts, notes: notes}
}

// respondError maps pipeline errors onto their HTTP statuses; soft
// refusals (202) are reported as successes with a message.
func respondError(c *gin.Context, err error) {
	coded := errors.FromError(err)
	if coded.Code == http.StatusAccepted {
		response.Accepted(c, coded.Message)
		return
	}
	response.Error(c, coded.Code, coded.Message)
}

func (h *AlertHandler) Receive(c *gin.Context) {
	var alert models.Alert
	if err := c.ShouldBindJSON(&alert); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if customers := middleware.CustomersFrom(c); customers != nil {
		// scoped callers can only file alerts under their own customer
		if alert.Customer == nil || !containsString(customers, *alert.Customer) {
			alert.Customer = &customers[0]
		}
	}

	stored, err := h.service.Receive(c.Request.Context(), &alert)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, stored)
}

func (h *AlertHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	alert, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, alert)
}

type statusRequest struct {
	Status  string `json:"status" binding:"required"`
	Text    string `json:"text"`
	Timeout int    `json:"timeout"`
}

func (h *AlertHandler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.service.SetStatus(c.Request.Context(), id, req.Status, req.Text, middleware.LoginFrom(c), req.Timeout)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, alert)
}

type actionRequest struct {
	Action  string `json:"action" binding:"required"`
	Text    string `json:"text"`
	Timeout int    `json:"timeout"`
}

func (h *AlertHandler) Action(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.service.Action(c.Request.Context(), id, req.Action, req.Text, middleware.LoginFrom(c), req.Timeout)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, alert)
}

type tagRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

func (h *AlertHandler) Tag(c *gin.Context) {
	h.tagOp(c, h.service.Tag)
}

func (h *AlertHandler) Untag(c *gin.Context) {
	h.tagOp(c, h.service.Untag)
}

func (h *AlertHandler) ReplaceTags(c *gin.Context) {
	h.tagOp(c, h.service.ReplaceTags)
}

func (h *AlertHandler) tagOp(c *gin.Context, op func(ctx context.Context, id uuid.UUID, tags []string) (*models.Alert, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := op(c.Request.Context(), id, req.Tags)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, alert)
}

func (h *AlertHandler) UpdateAttributes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Attributes map[string]interface{} `json:"attributes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.service.UpdateAttributes(c.Request.Context(), id, req.Attributes)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, alert)
}

func (h *AlertHandler) Delete(c *gin.Context) {
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

func (h *AlertHandler) buildQuery(c *gin.Context) (*repository.AlertQuery, bool) {
	q, err := repository.BuildAlertQuery(c.Request.URL.Query(), middleware.CustomersFrom(c))
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return q, true
}

func (h *AlertHandler) List(c *gin.Context) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	alerts, total, err := h.alerts.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"alerts": alerts,
		"total":  total,
		"page":   q.Page,
		"size":   q.PageSize,
	})
}

func (h *AlertHandler) Count(c *gin.Context) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	severityCounts, statusCounts, total, err := h.alerts.Counts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"total":          total,
		"severityCounts": severityCounts,
		"statusCounts":   statusCounts,
	})
}

func (h *AlertHandler) Top10Count(c *gin.Context) {
	h.top10(c, h.alerts.Top10Count)
}

func (h *AlertHandler) Top10Flapping(c *gin.Context) {
	h.top10(c, h.alerts.Top10Flapping)
}

func (h *AlertHandler) Top10Standing(c *gin.Context) {
	h.top10(c, h.alerts.Top10Standing)
}

func (h *AlertHandler) top10(c *gin.Context, op func(ctx context.Context, q *repository.AlertQuery) ([]repository.TopEntry, error)) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	top, err := op(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"top10": top})
}

func (h *AlertHandler) History(c *gin.Context) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	history, err := h.alerts.History(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"history": history})
}

func (h *AlertHandler) HistoryCount(c *gin.Context) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	total, err := h.alerts.HistoryCount(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"total": total})
}

func (h *AlertHandler) Environments(c *gin.Context) {
	h.grouped(c, h.alerts.Environments, "environments")
}

func (h *AlertHandler) Services(c *gin.Context) {
	h.grouped(c, h.alerts.Services, "services")
}

func (h *AlertHandler) Groups(c *gin.Context) {
	h.grouped(c, h.alerts.Groups, "groups")
}

func (h *AlertHandler) Tags(c *gin.Context) {
	h.grouped(c, h.alerts.TagCounts, "tags")
}

func (h *AlertHandler) grouped(c *gin.Context, op func(ctx context.Context, q *repository.AlertQuery) ([]repository.GroupCount, error), key string) {
	q, ok := h.buildQuery(c)
	if !ok {
		return
	}
	counts, err := op(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{key: counts})
}

type noteRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *AlertHandler) AddNote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.service.AddNote(c.Request.Context(), id, req.Text, middleware.LoginFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	note := &models.Note{
		ID:      uuid.New(),
		Text:    req.Text,
		User:    middleware.LoginFrom(c),
		Type:    "alert",
		AlertID: &id,
	}
	if err := h.notes.Create(c.Request.Context(), note); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"alert": alert, "note": note})
}

func (h *AlertHandler) ListNotes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	notes, err := h.notes.ListByAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"notes": notes})
}

func (h *AlertHandler) ListAllNotes(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"notes": notes, "total": len(notes)})
}

func (h *AlertHandler) UpdateNote(c *gin.Context) {
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid note id")
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	note, err := h.notes.Get(c.Request.Context(), noteID)
	if err != nil {
		respondError(c, err)
		return
	}
	now := time.Now()
	note.Text = req.Text
	note.User = middleware.LoginFrom(c)
	note.UpdateTime = &now
	if err := h.notes.Update(c.Request.Context(), note); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *AlertHandler) DeleteNote(c *gin.Context) {
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid note id")
		return
	}
	if err := h.notes.Delete(c.Request.Context(), noteID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

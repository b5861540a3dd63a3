package handlers

import (
	"net/http"
	"time"

	"alertd/internal/middleware"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/services"
	"alertd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EscalationHandler struct {
	rules   *repository.EscalationRuleRepository
	service *services.EscalationService
}

func NewEscalationHandler(rules *repository.EscalationRuleRepository, service *services.EscalationService) *EscalationHandler {
	return &EscalationHandler{rules: rules, service: service}
}

func (h *EscalationHandler) Create(c *gin.Context) {
	var rule models.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if rule.Environment == "" {
		response.Error(c, http.StatusBadRequest, "environment is required")
		return
	}
	if rule.Time <= 0 {
		response.Error(c, http.StatusBadRequest, "time must be positive")
		return
	}
	rule.ID = uuid.New()
	rule.User = middleware.LoginFrom(c)
	rule.CreateTime = time.Now()
	if err := h.rules.Create(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *EscalationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	rule, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *EscalationHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	rules, total, err := h.rules.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"rules": rules,
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

func (h *EscalationHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var rule models.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	rule.ID = id
	if err := h.rules.Update(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *EscalationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// Run scans the active escalation rules and escalates every stale
// open alert they cover, returning the escalated alerts.
func (h *EscalationHandler) Run(c *gin.Context) {
	escalated, err := h.service.Scan(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"alerts": escalated, "count": len(escalated)})
}

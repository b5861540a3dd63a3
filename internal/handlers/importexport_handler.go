package handlers

import (
	"fmt"
	"net/http"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/services"
	"alertd/pkg/response"

	"github.com/gin-gonic/gin"
)

// ImportExportHandler moves alerts in and out of the system in bulk,
// mainly for migrations and backups.
type ImportExportHandler struct {
	service *services.AlertService
	alerts  *repository.AlertRepository
}

func NewImportExportHandler(service *services.AlertService, alerts *repository.AlertRepository) *ImportExportHandler {
	return &ImportExportHandler{service: service, alerts: alerts}
}

type importFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Import runs each posted alert through the normal receive pipeline,
// so defaults, policy checks and deduplication all still apply.
func (h *ImportExportHandler) Import(c *gin.Context) {
	var alerts []models.Alert
	if err := c.ShouldBindJSON(&alerts); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	accepted := 0
	failures := []importFailure{}
	for i := range alerts {
		alert := alerts[i]
		if _, err := h.service.Receive(c.Request.Context(), &alert); err != nil {
			failures = append(failures, importFailure{Index: i, Error: err.Error()})
			continue
		}
		accepted++
	}
	response.Success(c, gin.H{
		"received": len(alerts),
		"accepted": accepted,
		"rejected": len(failures),
		"failures": failures,
	})
}

// Export streams every stored alert as a JSON attachment.
func (h *ImportExportHandler) Export(c *gin.Context) {
	alerts, err := h.alerts.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("alerts-%s.json", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, gin.H{
		"alerts":     alerts,
		"total":      len(alerts),
		"exportedAt": time.Now(),
	})
}

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"alertd/internal/crypto"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/services"
	"alertd/pkg/errors"
	"alertd/pkg/pagination"
	"alertd/pkg/response"
	"alertd/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NotificationHandler serves channels, rules, groups, delayed
// notifications and the send history.
type NotificationHandler struct {
	channels   *repository.ChannelRepository
	rules      *repository.NotificationRuleRepository
	groups     *repository.NotificationGroupRepository
	delays     *repository.DelayRepository
	history    *repository.NotificationHistoryRepository
	alerts     *repository.AlertRepository
	ruleSvc    *services.RuleService
	dispatcher *services.Dispatcher
	box        *crypto.Box
}

func NewNotificationHandler(channels *repository.ChannelRepository, rules *repository.NotificationRuleRepository,
	groups *repository.NotificationGroupRepository, delays *repository.DelayRepository,
	history *repository.NotificationHistoryRepository, alerts *repository.AlertRepository,
	ruleSvc *services.RuleService, dispatcher *services.Dispatcher, box *crypto.Box) *NotificationHandler {
	return &NotificationHandler{
		channels:   channels,
		rules:      rules,
		groups:     groups,
		delays:     delays,
		history:    history,
		alerts:     alerts,
		ruleSvc:    ruleSvc,
		dispatcher: dispatcher,
		box:        box,
	}
}

func pageParams(c *gin.Context) (int, int) {
	return pagination.GetPage(c), pagination.GetPageSize(c)
}

// --- channels ---

type channelRequest struct {
	Type              string  `json:"type" binding:"required"`
	Sender            string  `json:"sender" binding:"required"`
	Host              *string `json:"host"`
	PlatformID        *string `json:"platformId"`
	PlatformPartnerID *string `json:"platformPartnerId"`
	APISid            string  `json:"apiSid"`
	APIToken          string  `json:"apiToken"`
	Customer          *string `json:"customer"`
	Verify            *bool   `json:"verify"`
}

func (h *NotificationHandler) sealedChannel(req *channelRequest) (*models.NotificationChannel, error) {
	if err := validator.Var(req.Type,
		"oneof=twilio_sms twilio_call sendgrid smtp link_mobility_xml my_link"); err != nil {
		return nil, errors.ErrValidation(fmt.Sprintf("unsupported channel type %q", req.Type))
	}
	sid, err := h.box.Encrypt(req.APISid)
	if err != nil {
		return nil, err
	}
	token, err := h.box.Encrypt(req.APIToken)
	if err != nil {
		return nil, err
	}
	return &models.NotificationChannel{
		ID:                uuid.New(),
		Type:              req.Type,
		Sender:            req.Sender,
		Host:              req.Host,
		PlatformID:        req.PlatformID,
		PlatformPartnerID: req.PlatformPartnerID,
		APISid:            sid,
		APIToken:          token,
		Customer:          req.Customer,
		Verify:            req.Verify,
	}, nil
}

func (h *NotificationHandler) CreateChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	channel, err := h.sealedChannel(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.channels.Create(c.Request.Context(), channel); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, channel)
}

func (h *NotificationHandler) GetChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	channel, err := h.channels.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, channel)
}

func (h *NotificationHandler) ListChannels(c *gin.Context) {
	page, pageSize := pageParams(c)
	channels, total, err := h.channels.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"channels": channels,
		"total":    total,
		"page":     page,
		"size":     pageSize,
	})
}

func (h *NotificationHandler) UpdateChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	channel, err := h.sealedChannel(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	channel.ID = id
	if err := h.channels.Update(c.Request.Context(), channel); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, channel)
}

func (h *NotificationHandler) DeleteChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.channels.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

type channelTestRequest struct {
	Text      string   `json:"text"`
	Receivers []string `json:"receivers" binding:"required"`
}

func (h *NotificationHandler) TestChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req channelTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	channel, err := h.channels.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	targets := make([]models.NotificationInfo, 0, len(req.Receivers))
	for _, r := range req.Receivers {
		targets = append(targets, models.NotificationInfo{PhoneNumber: r, Mail: r})
	}
	results := h.dispatcher.TestChannel(c.Request.Context(), channel, req.Text, targets)
	response.Success(c, gin.H{"results": results})
}

// --- rules ---

func (h *NotificationHandler) CreateRule(c *gin.Context) {
	var rule models.NotificationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	rule.ID = uuid.New()
	rule.CreateTime = time.Now()
	if err := h.rules.Create(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *NotificationHandler) GetRule(c *gin.Context) {
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

func (h *NotificationHandler) ListRules(c *gin.Context) {
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

func (h *NotificationHandler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var rule models.NotificationRule
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

func (h *NotificationHandler) DeleteRule(c *gin.Context) {
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

type activeRulesRequest struct {
	ID uuid.UUID `json:"id" binding:"required"`
}

// ActiveRules returns the notification rules that would fire for the
// given alert right now.
func (h *NotificationHandler) ActiveRules(c *gin.Context) {
	var req activeRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.alerts.Get(c.Request.Context(), req.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	matches, err := h.ruleSvc.SelectActive(c.Request.Context(), alert, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"rules": matchedRules(matches)})
}

// ActiveStatusRules returns the rules that would fire for the alert's
// current status treated as an operator status change.
func (h *NotificationHandler) ActiveStatusRules(c *gin.Context) {
	var req activeRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.alerts.Get(c.Request.Context(), req.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	matches, err := h.ruleSvc.SelectActiveStatus(c.Request.Context(), alert, alert.Status, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"rules": matchedRules(matches)})
}

func matchedRules(matches []services.RuleMatch) []models.NotificationRule {
	rules := make([]models.NotificationRule, 0, len(matches))
	for _, m := range matches {
		rules = append(rules, *m.Rule)
	}
	return rules
}

// --- groups ---

func (h *NotificationHandler) CreateGroup(c *gin.Context) {
	var group models.NotificationGroup
	if err := c.ShouldBindJSON(&group); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	group.ID = uuid.New()
	group.CreateTime = time.Now()
	if err := h.groups.Create(c.Request.Context(), &group); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, group)
}

func (h *NotificationHandler) GetGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	group, err := h.groups.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, group)
}

func (h *NotificationHandler) ListGroups(c *gin.Context) {
	page, pageSize := pageParams(c)
	groups, total, err := h.groups.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"groups": groups,
		"total":  total,
		"page":   page,
		"size":   pageSize,
	})
}

func (h *NotificationHandler) UpdateGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var group models.NotificationGroup
	if err := c.ShouldBindJSON(&group); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	group.ID = id
	if err := h.groups.Update(c.Request.Context(), &group); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, group)
}

func (h *NotificationHandler) DeleteGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.groups.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// --- delayed notifications ---

func (h *NotificationHandler) ListDelays(c *gin.Context) {
	delays, err := h.delays.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"delays": delays})
}

// FireDelays drains every due delayed notification immediately.
func (h *NotificationHandler) FireDelays(c *gin.Context) {
	fired, err := h.dispatcher.FireDue(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"fired": fired})
}

// --- send history ---

func (h *NotificationHandler) ListHistory(c *gin.Context) {
	page, pageSize := pageParams(c)
	history, total, err := h.history.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"history": history,
		"total":   total,
		"page":    page,
		"size":    pageSize,
	})
}

func (h *NotificationHandler) ListSends(c *gin.Context) {
	page, pageSize := pageParams(c)
	sends, err := h.history.ListSent(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"sends": sends})
}

type sendsByIDRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

func (h *NotificationHandler) SendsByID(c *gin.Context) {
	var req sendsByIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	sends, err := h.history.ListByIDs(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"sends": sends})
}

// ConfirmSend marks a delivery as acknowledged by its receiver.
func (h *NotificationHandler) ConfirmSend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.history.Confirm(c.Request.Context(), id, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

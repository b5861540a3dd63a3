package handlers

import (
	"crypto/rand"
	"encoding/base64"
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

// AdminHandler serves users, API keys, customers and permissions.
type AdminHandler struct {
	users     *services.UserService
	keys      *repository.KeyRepository
	customers *repository.CustomerRepository
	perms     *repository.PermRepository
}

func NewAdminHandler(users *services.UserService, keys *repository.KeyRepository,
	customers *repository.CustomerRepository, perms *repository.PermRepository) *AdminHandler {
	return &AdminHandler{users: users, keys: keys, customers: customers, perms: perms}
}

// --- auth ---

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	user, token, err := h.users.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	response.Success(c, gin.H{"user": user, "token": token})
}

func (h *AdminHandler) Profile(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Error(c, http.StatusUnauthorized, "no user in context")
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, user)
}

// --- users ---

type userRequest struct {
	Name        string   `json:"name" binding:"required"`
	Login       string   `json:"login" binding:"required"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
	Text        string   `json:"text"`
	PhoneNumber *string  `json:"phoneNumber"`
	Country     *string  `json:"country"`
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		response.Error(c, http.StatusBadRequest, "password is required")
		return
	}
	user := &models.User{
		Name:        req.Name,
		Login:       req.Login,
		Email:       req.Email,
		Roles:       req.Roles,
		Text:        req.Text,
		PhoneNumber: req.PhoneNumber,
		Country:     req.Country,
	}
	created, err := h.users.Create(c.Request.Context(), user, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, created)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)
	users, total, err := h.users.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"users": users,
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	existing, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	existing.Name = req.Name
	existing.Login = req.Login
	existing.Email = req.Email
	if len(req.Roles) > 0 {
		existing.Roles = req.Roles
	}
	existing.Text = req.Text
	existing.PhoneNumber = req.PhoneNumber
	existing.Country = req.Country

	updated, err := h.users.Update(c.Request.Context(), existing, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, updated)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// --- api keys ---

type keyRequest struct {
	User     string   `json:"user"`
	Scopes   []string `json:"scopes"`
	Text     string   `json:"text"`
	Expires  *int     `json:"expires"`
	Customer *string  `json:"customer"`
}

func (h *AdminHandler) CreateKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	raw := make([]byte, 30)
	if _, err := rand.Read(raw); err != nil {
		respondError(c, err)
		return
	}
	user := req.User
	if user == "" {
		user = middleware.LoginFrom(c)
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read", "write"}
	}
	expires := 365 * 24 * 3600
	if req.Expires != nil && *req.Expires > 0 {
		expires = *req.Expires
	}

	key := &models.APIKey{
		Key:        base64.URLEncoding.EncodeToString(raw),
		User:       user,
		Scopes:     scopes,
		Text:       req.Text,
		ExpireTime: time.Now().Add(time.Duration(expires) * time.Second),
		Customer:   req.Customer,
	}
	if err := h.keys.Create(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, key)
}

func (h *AdminHandler) ListKeys(c *gin.Context) {
	page, pageSize := pageParams(c)
	keys, total, err := h.keys.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"keys":  keys,
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

func (h *AdminHandler) DeleteKey(c *gin.Context) {
	if err := h.keys.Delete(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// --- customers ---

func (h *AdminHandler) CreateCustomer(c *gin.Context) {
	var customer models.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if customer.Match == "" || customer.Customer == "" {
		response.Error(c, http.StatusBadRequest, "match and customer are required")
		return
	}
	customer.ID = uuid.New()
	if err := h.customers.Create(c.Request.Context(), &customer); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, customer)
}

func (h *AdminHandler) ListCustomers(c *gin.Context) {
	page, pageSize := pageParams(c)
	customers, total, err := h.customers.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"customers": customers,
		"total":     total,
		"page":      page,
		"size":      pageSize,
	})
}

func (h *AdminHandler) DeleteCustomer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.customers.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// --- permissions ---

func (h *AdminHandler) CreatePerm(c *gin.Context) {
	var perm models.Permission
	if err := c.ShouldBindJSON(&perm); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if perm.Match == "" {
		response.Error(c, http.StatusBadRequest, "match is required")
		return
	}
	perm.ID = uuid.New()
	if err := h.perms.Create(c.Request.Context(), &perm); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, perm)
}

func (h *AdminHandler) ListPerms(c *gin.Context) {
	page, pageSize := pageParams(c)
	perms, total, err := h.perms.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"permissions": perms,
		"total":       total,
		"page":        page,
		"size":        pageSize,
	})
}

func (h *AdminHandler) DeletePerm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.perms.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

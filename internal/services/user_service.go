package services

import (
	"context"
	"fmt"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService manages operator accounts and issues login tokens.
type UserService struct {
	users     *repository.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
}

func NewUserService(users *repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *UserService {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &UserService{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

type loginClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Login  string   `json:"login"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Login verifies credentials and returns the user with a signed JWT.
func (s *UserService) Login(ctx context.Context, login, password string) (*models.User, string, error) {
	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		return nil, "", errors.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", errors.ErrUnauthorized
	}

	now := time.Now()
	claims := loginClaims{
		UserID: user.ID.String(),
		Name:   user.Name,
		Login:  user.Login,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, "", err
	}

	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Create registers a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	n, err := s.users.CountByLogin(ctx, user.Login)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, errors.ErrConflict(fmt.Sprintf("login %q already exists", user.Login))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if len(user.Roles) == 0 {
		user.Roles = []string{"user"}
	}
	if user.Status == "" {
		user.Status = "active"
	}
	user.Password = string(hash)
	user.CreateTime = time.Now()
	user.UpdateTime = user.CreateTime

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update saves profile changes; a non-empty password is rehashed.
func (s *UserService) Update(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hash)
	}
	user.UpdateTime = time.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.Get(ctx, id)
}

func (s *UserService) List(ctx context.Context, page, pageSize int) ([]models.User, int, error) {
	return s.users.List(ctx, page, pageSize)
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

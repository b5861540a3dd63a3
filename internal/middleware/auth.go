package middleware

import (
	"net/http"
	"strings"
	"time"

	"alertd/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Login  string   `json:"login"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

const AdminRole = "admin"

// Auth authenticates a request by API key (X-API-Key header or
// api-key query parameter) or by bearer JWT. On success it stores
// login, roles and, when customer views are enabled, the customer
// list the caller may see.
func Auth(jwtSecret string, keys *repository.KeyRepository, customers *repository.CustomerRepository, customerViews bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := apiKeyFrom(c); key != "" {
			record, err := keys.Get(c.Request.Context(), key)
			if err != nil || time.Now().After(record.ExpireTime) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired api key"})
				return
			}
			if err := keys.Touch(c.Request.Context(), key, time.Now()); err == nil {
				record.Count++
			}
			c.Set("login", record.User)
			c.Set("roles", record.Scopes)
			if customerViews && record.Customer != nil {
				c.Set("customers", []string{*record.Customer})
			}
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		if userID, err := uuid.Parse(claims.UserID); err == nil {
			c.Set("user_id", userID)
		}
		c.Set("login", claims.Login)
		c.Set("name", claims.Name)
		c.Set("roles", claims.Roles)

		if customerViews && !hasRole(claims.Roles, AdminRole) {
			matches := append([]string{claims.Login}, loginDomain(claims.Login)...)
			scoped, err := customers.MatchCustomers(c.Request.Context(), matches)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "customer lookup failed"})
				return
			}
			if len(scoped) == 0 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no customer entitlement"})
				return
			}
			c.Set("customers", scoped)
		}
		c.Next()
	}
}

func apiKeyFrom(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.Query("api-key")
}

func loginDomain(login string) []string {
	if i := strings.Index(login, "@"); i >= 0 {
		return []string{login[i+1:]}
	}
	return nil
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// RequireRole rejects callers missing all of the given roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("roles")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not found"})
			return
		}
		roles, _ := value.([]string)
		for _, want := range allowed {
			if hasRole(roles, want) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

// CustomersFrom returns the caller's customer scope, or nil when the
// caller may see everything.
func CustomersFrom(c *gin.Context) []string {
	if value, exists := c.Get("customers"); exists {
		if scoped, ok := value.([]string); ok {
			return scoped
		}
	}
	return nil
}

// LoginFrom returns the authenticated login name.
func LoginFrom(c *gin.Context) string {
	if value, exists := c.Get("login"); exists {
		if login, ok := value.(string); ok {
			return login
		}
	}
	return ""
}

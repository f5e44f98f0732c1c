package handler

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const adminIssuer = "qldb"

// AdminTokens issues and verifies short-lived HS256 admin tokens. The static
// admin secret is both the exchange credential and the signing key.
type AdminTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewAdminTokens creates an AdminTokens. ttl defaults to one hour.
func NewAdminTokens(secret string, ttl time.Duration) *AdminTokens {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &AdminTokens{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed admin token.
func (a *AdminTokens) Issue() (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    adminIssuer,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.New().String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates an admin token.
func (a *AdminTokens) Verify(tokenStr string) error {
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(adminIssuer),
		jwt.WithSubject("admin"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("verify admin token: %w", err)
	}
	return nil
}

// CheckSecret reports whether secret is the configured admin secret.
func (a *AdminTokens) CheckSecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), a.secret) == 1
}

// RequireAdmin returns a Gin middleware that rejects requests without a
// valid admin Bearer token.
func RequireAdmin(tokens *AdminTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin Bearer token required",
			})
			return
		}

		if err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer ")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		c.Next()
	}
}

// AuthHandler exchanges the admin secret for an admin token.
type AuthHandler struct {
	tokens *AdminTokens
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tokens *AdminTokens, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger}
}

// Register mounts POST /auth/token.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
}

// Token handles POST /auth/token.
//
//	Request:  {"secret": "..."}
//	Response: {"access_token": "...", "token_type": "Bearer", "expires_at": "..."}
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.tokens.CheckSecret(req.Secret) {
		h.logger.Warn("admin token request with wrong secret", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	tok, exp, err := h.tokens.Issue()
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok,
		"token_type":   "Bearer",
		"expires_at":   exp,
	})
}

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmaudit/internal/auditctx"
	"crmaudit/internal/config"
	"crmaudit/internal/logger"
	"crmaudit/internal/models"
)

const (
	tokenIssuer = "crmaudit-api"

	userIDKey = "userID"
	roleKey   = "role"
)

// getJWTKey returns the JWT key from configuration
func getJWTKey() []byte {
	return []byte(config.Get().JWTSecret)
}

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Actor returns the audit actor the claims describe.
func (c *JWTClaims) Actor() auditctx.Actor {
	return auditctx.Actor{ID: c.UserID, Name: c.Name, Role: c.Role}
}

// GenerateAccessToken generates a JWT access token for an actor, valid for
// the configured JWT expiration.
func GenerateAccessToken(actor auditctx.Actor, sessionID string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:    actor.ID,
		Name:      actor.Name,
		Role:      actor.Role,
		SessionID: sessionID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.Get().JWTExpirationDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   actor.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getJWTKey())
}

// AuthMiddleware verifies the JWT token and attaches the actor to the
// request context so audit records written downstream are attributed.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		// Check if the header is in the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		// Parse the token
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return getJWTKey(), nil
		})

		if err != nil || !token.Valid || claims.TokenType != "access" || claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)

		ctx := auditctx.WithActor(c.Request.Context(), claims.Actor())
		if claims.SessionID != "" {
			if req, ok := auditctx.RequestFrom(ctx); ok && req.SessionID == "" {
				req.SessionID = claims.SessionID
				ctx = auditctx.WithRequest(ctx, req)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SecurityRecorder records security incidents to the audit trail.
type SecurityRecorder interface {
	LogSecurityEvent(ctx context.Context, category models.EventCategory, details string) (string, error)
}

// RequireRole rejects authenticated callers whose role is not in roles.
// Denials are recorded as PERMISSION_DENIED when recorder is set.
func RequireRole(recorder SecurityRecorder, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		if slices.Contains(roles, role) {
			c.Next()
			return
		}

		if recorder != nil {
			details := fmt.Sprintf("role %q denied %s %s", role, c.Request.Method, c.Request.URL.Path)
			if _, err := recorder.LogSecurityEvent(c.Request.Context(), models.CategoryPermissionDenied, details); err != nil {
				logger.Get().Errorw("failed to record permission denial", "error", err)
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": "FORBIDDEN", "message": "Access denied"},
		})
	}
}

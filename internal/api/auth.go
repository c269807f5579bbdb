package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garagehq/vhc/internal/repair"
)

const actorKey = "actor"

// actorClaims are the staff token claims.
type actorClaims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 staff token. Used by the CLI for local tokens.
func IssueToken(secret, userID, orgID, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := actorClaims{
		UserID: userID,
		OrgID:  orgID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// requireStaff validates the bearer token and stores its claims.
func requireStaff(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		var claims actorClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			abortUnauthorized(c, "token expired")
			return
		case err != nil:
			abortUnauthorized(c, "invalid token")
			return
		}
		if claims.UserID == "" || claims.OrgID == "" {
			abortUnauthorized(c, "token lacks user_id or org_id")
			return
		}
		c.Set(actorKey, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
		"kind":    "unauthorized",
		"code":    "UNAUTHORIZED",
		"message": msg,
	}})
}

// actor returns the authenticated staff member.
func actor(c *gin.Context) repair.Actor {
	claims := c.MustGet(actorKey).(actorClaims)
	return repair.Actor{UserID: claims.UserID, OrganizationID: claims.OrgID, Role: claims.Role}
}

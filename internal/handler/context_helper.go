package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/online-course-api/internal/middleware"
	"github.com/noah-isme/online-course-api/internal/models"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
	"github.com/noah-isme/online-course-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// requireClaims writes 401 and returns nil when no user is attached.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-perpus-api/internal/middleware"
	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (scope.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return scope.Actor{}, false
	}
	return scope.FromClaims(claims), true
}

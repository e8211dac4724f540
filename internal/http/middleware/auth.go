package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

// APIKey guards job endpoints. The key may be sent as "Bearer <key>" or bare.
// An empty key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if key == "" {
			ctx.Next()
			return
		}

		token := strings.TrimSpace(ctx.GetHeader("Authorization"))
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = strings.TrimSpace(token[7:])
		}

		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Error:   "Unauthorized",
			})
			return
		}

		ctx.Next()
	}
}

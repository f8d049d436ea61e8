package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/xkcdviews/utils"
)

// ContextSubjectKey stores the authenticated token subject inside Gin context.
const ContextSubjectKey = "subject"

// AdminRequired ensures the request carries a valid admin bearer token signed with secret.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid authorization header format")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token")
			ctx.Abort()
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.Error(ctx, http.StatusForbidden, utils.CodeForbidden, "admin role required")
			ctx.Abort()
			return
		}

		ctx.Set(ContextSubjectKey, claims.Subject)
		ctx.Next()
	}
}

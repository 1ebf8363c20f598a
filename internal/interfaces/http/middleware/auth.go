package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/customs/internal/infrastructure/auth"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OperatorContextKey is the gin context key holding the authenticated operator subject
const OperatorContextKey = "operator"

// TokenValidator validates operator bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.OperatorClaims, error)
}

// RequireOperator rejects requests without a valid operator bearer token
func RequireOperator(tokens TokenValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization header is required")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			code, message := dto.ErrCodeInvalidToken, "Invalid operator token"
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				code, message = dto.ErrCodeTokenExpired, "Operator token has expired"
			case errors.Is(err, auth.ErrTokenNotYetValid):
				code, message = dto.ErrCodeTokenNotYetValid, "Operator token is not yet valid"
			}
			logger.GetGinLogger(c, log).Warn("Rejected operator token",
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			abortUnauthorized(c, code, message)
			return
		}

		c.Set(OperatorContextKey, claims.Subject)
		c.Next()
	}
}

// GetOperator returns the operator subject set by RequireOperator
func GetOperator(c *gin.Context) string {
	return c.GetString(OperatorContextKey)
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="customs"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

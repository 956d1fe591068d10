package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// APIKeyHeader 是携带 API 密钥的请求头。
const APIKeyHeader = "X-API-Key"

// SubjectKey 是认证通过后调用方标识在 gin 上下文中的键。
const SubjectKey = "subject"

// AuthMiddleware 创建一个 Gin 中间件，接受 X-API-Key 或 Bearer JWT 两种凭证。
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.JwtSecret)

	return func(c *gin.Context) {
		if key := c.GetHeader(APIKeyHeader); key != "" {
			if validAPIKey(cfg.APIKeys, key) {
				c.Set(SubjectKey, "api-key")
				c.Next()
				return
			}
			unauthorized(c, "无效的 API 密钥")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "请求未包含授权标头")
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || len(secret) == 0 {
			unauthorized(c, "授权标头格式不正确")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// 确保 token 的签名方法是我们期望的
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "无效的 token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "无效的 token claims")
			return
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			unauthorized(c, "无效的 token claims")
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

func validAPIKey(keys []string, key string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func unauthorized(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewErrorResponse("Unauthorized", detail))
}

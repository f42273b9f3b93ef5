package middleware

import (
	"net/http"
	"strings"

	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/jwt"

	"github.com/gin-gonic/gin"
)

// 上下文中存放认证身份的 key
const (
	CtxUserID   = "user_id"
	CtxDeviceID = "device_id"
)

// TokenValidator 无状态校验 Access Token
// 由 auth 服务实现，中间件不直接依赖令牌密钥
type TokenValidator interface {
	Validate(accessToken string) (*jwt.Claims, error)
}

// JWTAuth JWT 认证中间件
// 验证 Access Token 并将用户与设备身份存入上下文
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请先登录",
			})
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeTokenInvalid,
				"msg":  "Token 已过期或无效，请重新登录",
			})
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxDeviceID, claims.DeviceID)
		c.Next()
	}
}

// BearerToken 从 Authorization 头中取出 Bearer Token
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

package user

import (
	"net/http"
	"strings"

	"github.com/angelo-gelato/loyalty-backend/pkg/token"
	"github.com/gin-gonic/gin"
)

const (
	CookieName = "angelo-token"
	UserIDKey  = "userID"
	ClaimsKey  = "tokenClaims"
)

// bearerToken 优先读取 Authorization 头，其次读取cookie
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(h)
	}
	if v, err := c.Cookie(CookieName); err == nil {
		return v
	}
	return ""
}

// RequireAuth 校验登录令牌并把用户ID放入Gin上下文。
func RequireAuth(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Vous devez être connecté"})
			return
		}
		claims, err := issuer.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expirée, veuillez vous reconnecter"})
			return
		}
		c.Set(UserIDKey, claims.Subject)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// CurrentUserID 返回 RequireAuth 写入的用户ID
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// CurrentClaims 返回 RequireAuth 解析出的令牌
func CurrentClaims(c *gin.Context) *token.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}

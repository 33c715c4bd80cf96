package account

import (
	"errors"
	"net/http"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EnsureSession 在令牌有效但内存中没有会话时（例如服务重启后）从数据库和快照恢复会话。
// 必须放在 user.RequireAuth 之后。
func EnsureSession(users *user.Repository, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := user.CurrentUserID(c)
		if _, err := sessions.Get(id); err == nil {
			c.Next()
			return
		}

		profile, err := users.FetchProfile(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Compte introuvable"})
				return
			}
			logging.L().Error("恢复会话失败", zap.String("user", id), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Service momentanément indisponible"})
			return
		}
		sessions.Open(c.Request.Context(), profile)
		c.Next()
	}
}

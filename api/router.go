package api

import (
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/account"
	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/order"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/config"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/ratelimit"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/angelo-gelato/loyalty-backend/pkg/token"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers 汇总所有需要挂载的接口
type Handlers struct {
	Catalog *catalog.Handler
	Account *account.Handler
	Order   *order.Handler
	Health  *health.Handler
}

// Auth 是登录相关中间件需要的依赖
type Auth struct {
	Issuer   *token.Issuer
	Users    *user.Repository
	Sessions *session.Manager
}

// Limits 是按IP限流的中间件，为 nil 时不限流
type Limits struct {
	Login *ratelimit.Limiter
	Scan  *ratelimit.Limiter
}

func guards(l *ratelimit.Limiter) []gin.HandlerFunc {
	if l == nil {
		return nil
	}
	return []gin.HandlerFunc{l.Middleware()}
}

// NewRouter 创建Gin引擎，配置CORS、静态上传目录，并注册所有API路由
func NewRouter(cfg config.ServerConfig, h Handlers, auth Auth, limits Limits) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 头像等上传文件
	r.Static("/uploads", cfg.UploadDir)

	SetupRoutes(r, h, auth, limits)
	return r
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h Handlers, auth Auth, limits Limits) {
	api := router.Group("/api")
	{
		// 公开路由
		h.Health.RegisterRoutes(api)
		h.Catalog.RegisterRoutes(api)
		h.Account.RegisterPublicRoutes(api, guards(limits.Login)...)

		// 需要登录的路由，令牌有效但会话丢失时自动恢复
		authed := api.Group("",
			user.RequireAuth(auth.Issuer),
			account.EnsureSession(auth.Users, auth.Sessions),
		)
		h.Account.RegisterRoutes(authed, guards(limits.Scan)...)
		h.Order.RegisterRoutes(authed)
	}
}

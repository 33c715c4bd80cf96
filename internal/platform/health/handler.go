package health

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 对外报告数据库和Redis快照层的状态
type Handler struct {
	db     *gorm.DB
	status *Status
}

func NewHandler(db *gorm.DB, status *Status) *Handler {
	return &Handler{db: db, status: status}
}

// GetHealth 数据库不可用时返回503；Redis降级只影响快照层，仍返回200
func (h *Handler) GetHealth(c *gin.Context) {
	database := "up"
	code := http.StatusOK
	if err := h.pingDB(c.Request.Context()); err != nil {
		database = "down"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"database": database,
		"redis":    h.status.State().String(),
	})
}

func (h *Handler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.GetHealth)
}


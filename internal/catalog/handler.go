package catalog

import (
	"net/http"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	"github.com/gin-gonic/gin"
)

// --- API响应模型 ---

type StoreResponse struct {
	pickup.Store
	Availability string `json:"availability"`
}

type CatalogResponse struct {
	Products   []Product       `json:"products"`
	Flavors    []string        `json:"flavors"`
	Stores     []StoreResponse `json:"stores"`
	Tiers      []loyalty.Tier  `json:"tiers"`
	Slots      []string        `json:"slots"`
	MinDate    string          `json:"minDate"`
	MaxDate    string          `json:"maxDate"`
	WindowDays int             `json:"windowDays"`
}

type AvailabilityResponse struct {
	StoreID      string   `json:"storeId"`
	Date         string   `json:"date,omitempty"`
	Available    *bool    `json:"available,omitempty"`
	WithinWindow *bool    `json:"withinWindow,omitempty"`
	Message      string   `json:"message"`
	OpenDates    []string `json:"openDates,omitempty"`
}

// Handler 提供只读的目录接口
type Handler struct {
	catalog *Catalog
	rules   *pickup.Rules
	now     func() time.Time
}

func NewHandler(c *Catalog, rules *pickup.Rules) *Handler {
	return &Handler{catalog: c, rules: rules, now: time.Now}
}

// GetCatalog 返回商品、口味、门店、等级和可选的取货时段
func (h *Handler) GetCatalog(c *gin.Context) {
	now := h.now().In(h.rules.Location())
	stores := make([]StoreResponse, 0, len(h.catalog.Stores))
	for _, s := range h.rules.Stores() {
		stores = append(stores, StoreResponse{Store: s, Availability: pickup.AvailabilityMessage(s)})
	}
	c.JSON(http.StatusOK, CatalogResponse{
		Products:   h.catalog.Products,
		Flavors:    h.catalog.Flavors,
		Stores:     stores,
		Tiers:      h.catalog.Tiers,
		Slots:      pickup.Slots(),
		MinDate:    now.AddDate(0, 0, 1).Format(pickup.DateLayout),
		MaxDate:    now.AddDate(0, 0, h.rules.WindowDays()).Format(pickup.DateLayout),
		WindowDays: h.rules.WindowDays(),
	})
}

// GetAvailability 检查门店某天能否取货；不带日期时列出窗口内所有可选日期
func (h *Handler) GetAvailability(c *gin.Context) {
	store, ok := h.rules.Store(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Magasin inconnu"})
		return
	}
	now := h.now().In(h.rules.Location())
	resp := AvailabilityResponse{StoreID: store.ID, Message: pickup.AvailabilityMessage(store)}

	if raw := c.Query("date"); raw != "" {
		date, err := pickup.ParseDate(raw, h.rules.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date invalide"})
			return
		}
		available := pickup.IsAvailable(store, date)
		within := h.rules.WithinWindow(date, now)
		resp.Date, resp.Available, resp.WithinWindow = raw, &available, &within
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.OpenDates = h.rules.OpenDates(store, now)
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes 注册公开的目录路由
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/catalog", h.GetCatalog)
	rg.GET("/stores/:id/availability", h.GetAvailability)
}

package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/angelo-gelato/loyalty-backend/internal/cart"
	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- API响应模型 ---

type CartResponse struct {
	Cart   cart.Snapshot    `json:"cart"`
	Pickup pickup.Selection `json:"pickup"`
	// Submittable 为空表示可以下单，否则是不能下单的原因
	Submittable string `json:"submittable,omitempty"`
}

type PickupResponse struct {
	Pickup      pickup.Selection `json:"pickup"`
	DateCleared bool             `json:"dateCleared"`
	Message     string           `json:"message,omitempty"`
}

// validationMessages 是返回给顾客的错误提示
var validationMessages = []struct {
	err error
	msg string
}{
	{cart.ErrNoFlavor, "Veuillez choisir au moins un parfum"},
	{cart.ErrTooManyFlavors, "Trop de parfums sélectionnés pour ce format"},
	{cart.ErrInvalidQuantity, "Quantité invalide"},
	{cart.ErrInvalidPrice, "Prix invalide"},
	{cart.ErrPositionOutOfRange, "Article introuvable dans le panier"},
	{catalog.ErrUnknownProduct, "Produit inconnu"},
	{catalog.ErrUnknownFlavor, "Parfum inconnu"},
	{pickup.ErrIncomplete, "Veuillez choisir un magasin, une date et un horaire"},
	{pickup.ErrUnknownStore, "Magasin inconnu"},
	{pickup.ErrStoreClosed, "Le magasin est fermé à cette date"},
	{pickup.ErrOutsideWindow, "La date de retrait doit être comprise entre demain et dans 14 jours"},
	{pickup.ErrUnknownSlot, "Horaire de retrait invalide"},
	{pickup.ErrInvalidDate, "Date invalide"},
	{ErrEmptyCart, "Votre panier est vide"},
}

func validationMessage(err error) (string, bool) {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return v.msg, true
		}
	}
	return "", false
}

// respondError 把服务层错误映射为HTTP响应
func respondError(c *gin.Context, err error, fallback string) {
	if msg, ok := validationMessage(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if errors.Is(err, session.ErrNoSession) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expirée, veuillez vous reconnecter"})
		return
	}
	logging.L().Error(fallback, zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": fallback})
}

// Handler 提供购物车、取货和下单相关的接口
type Handler struct {
	svc      *Service
	sessions *session.Manager
}

func NewHandler(svc *Service, sessions *session.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) cartResponse(st session.State) CartResponse {
	resp := CartResponse{Cart: st.Cart.View(), Pickup: st.Pickup}
	if err := h.svc.rules.Submittable(st.Pickup, h.svc.now()); err != nil {
		resp.Submittable, _ = validationMessage(err)
	} else if st.Cart.Len() == 0 {
		resp.Submittable, _ = validationMessage(ErrEmptyCart)
	}
	return resp
}

// GetCart 返回当前购物车和取货选择
func (h *Handler) GetCart(c *gin.Context) {
	st, err := h.sessions.Get(user.CurrentUserID(c))
	if err != nil {
		respondError(c, err, "Impossible de charger le panier")
		return
	}
	c.JSON(http.StatusOK, h.cartResponse(st))
}

// AddItem 加入一行商品
func (h *Handler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide"})
		return
	}
	st, err := h.svc.AddItem(c.Request.Context(), user.CurrentUserID(c), req)
	if err != nil {
		respondError(c, err, "Impossible d'ajouter l'article")
		return
	}
	c.JSON(http.StatusCreated, h.cartResponse(st))
}

// RemoveItem 删除指定位置的商品
func (h *Handler) RemoveItem(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Position invalide"})
		return
	}
	st, err := h.svc.RemoveItem(c.Request.Context(), user.CurrentUserID(c), position)
	if err != nil {
		respondError(c, err, "Impossible de retirer l'article")
		return
	}
	c.JSON(http.StatusOK, h.cartResponse(st))
}

// ClearCart 清空购物车
func (h *Handler) ClearCart(c *gin.Context) {
	st, err := h.svc.ClearCart(c.Request.Context(), user.CurrentUserID(c))
	if err != nil {
		respondError(c, err, "Impossible de vider le panier")
		return
	}
	c.JSON(http.StatusOK, h.cartResponse(st))
}

// SetPickup 修改取货门店、日期或时段
func (h *Handler) SetPickup(c *gin.Context) {
	var ch pickup.Change
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide"})
		return
	}
	st, cleared, err := h.svc.SetPickup(c.Request.Context(), user.CurrentUserID(c), ch)
	if err != nil {
		respondError(c, err, "Impossible de mettre à jour le retrait")
		return
	}
	resp := PickupResponse{Pickup: st.Pickup, DateCleared: cleared}
	if cleared {
		resp.Message = "La date choisie n'est pas disponible dans ce magasin, veuillez en choisir une autre"
	}
	c.JSON(http.StatusOK, resp)
}

// Submit 下单
func (h *Handler) Submit(c *gin.Context) {
	receipt, err := h.svc.Submit(c.Request.Context(), user.CurrentUserID(c))
	if err != nil {
		respondError(c, err, "Impossible d'enregistrer la commande")
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// History 返回历史订单
func (h *Handler) History(c *gin.Context) {
	orders, err := h.svc.History(c.Request.Context(), user.CurrentUserID(c))
	if err != nil {
		respondError(c, err, "Impossible de charger les commandes")
		return
	}
	c.JSON(http.StatusOK, orders)
}

// RegisterRoutes 注册需要登录的路由
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cart", h.GetCart)
	rg.POST("/cart/items", h.AddItem)
	rg.DELETE("/cart/items/:position", h.RemoveItem)
	rg.DELETE("/cart", h.ClearCart)
	rg.PUT("/cart/pickup", h.SetPickup)
	rg.POST("/orders", h.Submit)
	rg.GET("/orders", h.History)
}

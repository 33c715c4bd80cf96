package account

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/media"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/angelo-gelato/loyalty-backend/pkg/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- API请求与响应模型 ---

type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Birthday  string `json:"birthday"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
}

type ThemeRequest struct {
	Theme session.Theme `json:"theme"`
}

type MeResponse struct {
	session.View
	Standing loyalty.Standing `json:"standing"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	MeResponse
}

type ScanResponse struct {
	Accepted      bool              `json:"accepted"`
	PointsAwarded int               `json:"pointsAwarded,omitempty"`
	Visit         *loyalty.Visit    `json:"visit,omitempty"`
	Standing      *loyalty.Standing `json:"standing,omitempty"`
}

// Handler 提供注册、登录、个人资料和扫码积分接口
type Handler struct {
	users    *user.Repository
	sessions *session.Manager
	issuer   *token.Issuer
	media    *media.Store
	tiers    *loyalty.Table
	loc      *time.Location
	now      func() time.Time

	maxUploadBytes int64
	secureCookie   bool
}

// Options 是 Handler 的可选配置
type Options struct {
	Location       *time.Location
	MaxUploadBytes int64
	SecureCookie   bool
}

func NewHandler(users *user.Repository, sessions *session.Manager, issuer *token.Issuer, store *media.Store, tiers *loyalty.Table, opts Options) *Handler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		users:          users,
		sessions:       sessions,
		issuer:         issuer,
		media:          store,
		tiers:          tiers,
		loc:            loc,
		now:            time.Now,
		maxUploadBytes: opts.MaxUploadBytes,
		secureCookie:   opts.SecureCookie,
	}
}

func (h *Handler) me(st session.State) MeResponse {
	return MeResponse{View: st.View(), Standing: h.tiers.StandingFor(st.User.Points)}
}

// collaboratorError 记录外部调用失败并返回502
func collaboratorError(c *gin.Context, msg string, err error) {
	logging.L().Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": msg})
}

func profileValidationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, user.ErrInvalidEmail):
		return "Adresse e-mail invalide", true
	case errors.Is(err, user.ErrWeakPassword):
		return "Le mot de passe doit contenir au moins 6 caractères", true
	case errors.Is(err, user.ErrInvalidBirthday):
		return "Date de naissance invalide", true
	case errors.Is(err, user.ErrEmailTaken):
		return "Cette adresse e-mail est déjà utilisée", true
	}
	return "", false
}

// startSession 建立会话、签发令牌并写入cookie
func (h *Handler) startSession(c *gin.Context, status int, profile user.Profile) {
	st := h.sessions.Open(c.Request.Context(), profile)
	signed, expires, err := h.issuer.Issue(profile.ID)
	if err != nil {
		logging.L().Error("签发令牌失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur interne, veuillez réessayer"})
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(user.CookieName, signed, maxAge, "/", "", h.secureCookie, true)
	c.JSON(status, AuthResponse{Token: signed, ExpiresAt: expires, MeResponse: h.me(st)})
}

// Register 注册新账户并直接登录
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Veuillez remplir tous les champs obligatoires"})
		return
	}
	profile, err := h.users.CreateAccount(c.Request.Context(), user.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Birthday:  req.Birthday,
	})
	if err != nil {
		if msg, ok := profileValidationMessage(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		collaboratorError(c, "Impossible de créer le compte", err)
		return
	}
	logging.L().Info("新用户注册", zap.String("user", profile.ID))
	h.startSession(c, http.StatusCreated, profile)
}

// Login 校验邮箱和密码并建立会话
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Veuillez saisir votre e-mail et votre mot de passe"})
		return
	}
	profile, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "E-mail ou mot de passe incorrect"})
			return
		}
		collaboratorError(c, "Connexion impossible, veuillez réessayer", err)
		return
	}
	h.startSession(c, http.StatusOK, profile)
}

// Logout 丢弃内存中的会话并注销令牌，数据库中的资料保留
func (h *Handler) Logout(c *gin.Context) {
	id := user.CurrentUserID(c)
	if err := h.sessions.Close(c.Request.Context(), id); err != nil && !errors.Is(err, session.ErrNoSession) {
		logging.L().Warn("退出时删除会话快照失败", zap.String("user", id), zap.Error(err))
	}
	h.issuer.Revoke(user.CurrentClaims(c))
	c.SetCookie(user.CookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Déconnecté"})
}

// Me 返回资料、等级进度、主题和购物车概况
func (h *Handler) Me(c *gin.Context) {
	st, err := h.sessions.Get(user.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expirée, veuillez vous reconnecter"})
		return
	}
	c.JSON(http.StatusOK, h.me(st))
}

// UpdateProfile 修改姓名或邮箱，数据库写入成功后才更新会话
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide"})
		return
	}
	id := user.CurrentUserID(c)
	res := h.sessions.Commit(c.Request.Context(), id,
		func(st *session.State) error {
			if req.FirstName != nil {
				st.User.FirstName = *req.FirstName
			}
			if req.LastName != nil {
				st.User.LastName = *req.LastName
			}
			if req.Email != nil {
				st.User.Email = *req.Email
			}
			return nil
		},
		func(ctx context.Context, st *session.State) error {
			updated, err := h.users.UpdateProfile(ctx, id, user.ProfileUpdate{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Email:     req.Email,
			})
			if err != nil {
				return err
			}
			st.User = updated
			return nil
		},
	)
	if !res.OK() {
		h.respondCommitError(c, res.Err, "Impossible de mettre à jour le profil")
		return
	}
	c.JSON(http.StatusOK, h.me(res.State))
}

func (h *Handler) respondCommitError(c *gin.Context, err error, fallback string) {
	if msg, ok := profileValidationMessage(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if errors.Is(err, media.ErrNotImage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seules les images sont acceptées"})
		return
	}
	if errors.Is(err, media.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image trop volumineuse"})
		return
	}
	if errors.Is(err, session.ErrNoSession) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expirée, veuillez vous reconnecter"})
		return
	}
	collaboratorError(c, fallback, err)
}

// UploadPicture 上传头像。上传和资料写入都成功后才更新会话中的头像。
func (h *Handler) UploadPicture(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune image reçue"})
		return
	}
	file, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image illisible"})
		return
	}
	defer file.Close()

	id := user.CurrentUserID(c)
	res := h.sessions.Commit(c.Request.Context(), id, nil,
		func(ctx context.Context, st *session.State) error {
			uri, err := h.media.Upload(ctx, id, fh.Filename, file)
			if err != nil {
				return err
			}
			updated, err := h.users.UpdateProfile(ctx, id, user.ProfileUpdate{ProfilePicture: &uri})
			if err != nil {
				return err
			}
			st.User = updated
			return nil
		},
	)
	if !res.OK() {
		h.respondCommitError(c, res.Err, "Impossible d'enregistrer la photo de profil")
		return
	}
	c.JSON(http.StatusOK, h.me(res.State))
}

// SetTheme 设置主题，请求体为空时切换
func (h *Handler) SetTheme(c *gin.Context) {
	var req ThemeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide"})
			return
		}
	}
	if req.Theme != "" && !req.Theme.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thème inconnu"})
		return
	}
	st, err := h.sessions.Update(c.Request.Context(), user.CurrentUserID(c), func(st *session.State) error {
		if req.Theme == "" {
			st.Theme = st.Theme.Toggle()
		} else {
			st.Theme = req.Theme
		}
		return nil
	})
	if err != nil {
		h.respondCommitError(c, err, "Impossible de changer le thème")
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": st.Theme})
}

func chain(guards []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(guards)+1)
	return append(append(out, guards...), handler)
}

// RegisterPublicRoutes 注册不需要登录的路由，guards 会加在注册和登录之前（例如限流）
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup, guards ...gin.HandlerFunc) {
	rg.POST("/auth/register", chain(guards, h.Register)...)
	rg.POST("/auth/login", chain(guards, h.Login)...)
}

// RegisterRoutes 注册需要登录的路由，scanGuards 只作用于扫码接口
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, scanGuards ...gin.HandlerFunc) {
	rg.POST("/auth/logout", h.Logout)
	rg.GET("/me", h.Me)
	rg.PUT("/me", h.UpdateProfile)
	rg.POST("/me/picture", h.UploadPicture)
	rg.PUT("/me/theme", h.SetTheme)
	rg.POST("/scan", chain(scanGuards, h.Scan)...)
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/account"
	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/media"
	"github.com/angelo-gelato/loyalty-backend/internal/order"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/config"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/ratelimit"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/angelo-gelato/loyalty-backend/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) call(method, path, body string, out any) int {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)
	tiers, err := cat.TierTable()
	require.NoError(t, err)
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	rules, err := cat.PickupRules(14, loc)
	require.NoError(t, err)

	require.NoError(t, metadata.Migrate(db))
	users := user.NewRepository(db, tiers)
	require.NoError(t, users.Migrate())
	orders := order.NewRepository(db)
	require.NoError(t, orders.Migrate())

	sessions := session.NewManager(session.NewSQLStore(db))
	issuer := token.NewIssuer(nil, time.Hour)
	uploads := t.TempDir()
	store, err := media.NewStore(uploads, "/uploads", 1<<20)
	require.NoError(t, err)

	status := health.NewStatus(false)
	gin.SetMode(gin.TestMode)
	return NewRouter(
		config.ServerConfig{UploadDir: uploads, Cors: config.CorsConfig{AllowedOrigins: []string{"http://localhost:5173"}}},
		Handlers{
			Catalog: catalog.NewHandler(cat, rules),
			Account: account.NewHandler(users, sessions, issuer, store, tiers, account.Options{Location: loc}),
			Order:   order.NewHandler(order.NewService(sessions, orders, cat, rules), sessions),
			Health:  health.NewHandler(db, status),
		},
		Auth{Issuer: issuer, Users: users, Sessions: sessions},
		Limits{Login: ratelimit.New(nil, status, "login", 3, time.Minute)},
	)
}

func TestOrderAndScanJourney(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t)}

	var health map[string]string
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/health", "", &health))
	assert.Equal(t, "disabled", health["redis"])

	require.Equal(t, http.StatusUnauthorized, c.call(http.MethodGet, "/api/cart", "", nil))

	var auth account.AuthResponse
	require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/api/auth/register",
		`{"firstName":"Lucie","lastName":"Martin","email":"lucie@example.com","password":"glacier1"}`, &auth))
	c.token = auth.Token

	var availability struct {
		OpenDates []string `json:"openDates"`
	}
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/stores/1/availability", "", &availability))
	require.NotEmpty(t, availability.OpenDates)
	date := availability.OpenDates[0]

	var cartResp order.CartResponse
	require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/api/cart/items",
		`{"productLabel":"Bac (0.5L)","flavors":["Vanille","Fraise"],"quantity":3}`, &cartResp))
	assert.Equal(t, int64(2400), cartResp.Cart.TotalCents)
	assert.NotEmpty(t, cartResp.Submittable)

	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/api/orders", "", nil))

	var pickupResp order.PickupResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/cart/pickup",
		`{"storeId":"1","date":"`+date+`","slot":"14:00"}`, &pickupResp))
	assert.False(t, pickupResp.DateCleared)

	var receipt order.Receipt
	require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/api/orders", "", &receipt))
	assert.Len(t, receipt.Code, 6)
	assert.Equal(t, int64(2400), receipt.TotalCents)
	assert.Equal(t, order.ReceiptPayload{Code: receipt.Code, Amount: 24, Date: date}, receipt.Payload)

	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/cart", "", &cartResp))
	assert.Zero(t, cartResp.Cart.Count)
	assert.Empty(t, cartResp.Pickup.StoreID)

	var history []order.Order
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/orders", "", &history))
	require.Len(t, history, 1)
	assert.Equal(t, receipt.Code, history[0].Code)

	var scan account.ScanResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/scan", receipt.QR, &scan))
	assert.True(t, scan.Accepted)
	assert.Equal(t, 24, scan.PointsAwarded)
	assert.Equal(t, 176, scan.Standing.PointsToNext)
}

func TestCorsPreflight(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestLoginIsRateLimited(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t)}
	body := `{"email":"nobody@example.com","password":"wrong-password"}`
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, c.call(http.MethodPost, "/api/auth/login", body, nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, c.call(http.MethodPost, "/api/auth/login", body, nil))
}

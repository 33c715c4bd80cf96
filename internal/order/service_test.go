package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	svc      *Service
	repo     *Repository
	sessions *session.Manager
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
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
	require.NoError(t, metadata.Migrate(db))

	repo := NewRepository(db)
	require.NoError(t, repo.Migrate())

	cat, err := catalog.Default()
	require.NoError(t, err)
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	rules, err := cat.PickupRules(pickup.DefaultWindowDays, loc)
	require.NoError(t, err)

	sessions := session.NewManager(session.NewSQLStore(db))
	sessions.Open(context.Background(), user.Profile{ID: "u1", Account: loyalty.Account{Tier: "Bronze"}})

	svc := NewService(sessions, repo, cat, rules)
	svc.now = func() time.Time { return time.Date(2025, time.March, 10, 10, 0, 0, 0, loc) }
	return &fixture{svc: svc, repo: repo, sessions: sessions, handler: NewHandler(svc, sessions)}
}

func strPtr(s string) *string { return &s }

func TestAddItemUsesCatalogPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.AddItem(ctx, "u1", AddItemRequest{ProductLabel: "Bac (1L)", Flavors: []string{"Pistache", "Citron"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), st.Cart.TotalCents())
	assert.Equal(t, 1, st.Cart.Count())

	_, err = f.svc.AddItem(ctx, "u1", AddItemRequest{ProductLabel: "Bac (0.5L)", Flavors: []string{"Vanille", "Fraise", "Café"}})
	assert.Error(t, err)

	_, err = f.svc.AddItem(ctx, "ghost", AddItemRequest{ProductLabel: "Bac (1L)", Flavors: []string{"Pistache"}})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestSubmitPersistsOrderAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemRequest{ProductLabel: "Bac (0.5L)", Flavors: []string{"Vanille", "Fraise"}, Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "u1")
	assert.ErrorIs(t, err, pickup.ErrIncomplete)

	_, _, err = f.svc.SetPickup(ctx, "u1", pickup.Change{StoreID: strPtr("1"), Date: strPtr("2025-03-12"), Slot: strPtr("14:00")})
	require.NoError(t, err)

	receipt, err := f.svc.Submit(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, receipt.Code, 6)
	assert.Equal(t, strings.ToUpper(receipt.Code), receipt.Code)
	assert.Equal(t, int64(1600), receipt.TotalCents)
	assert.Equal(t, ReceiptPayload{Code: receipt.Code, Amount: 16, Date: "2025-03-12"}, receipt.Payload)
	assert.Contains(t, receipt.Message, "12/03/2025")

	parsed, ok := loyalty.ParsePayload(receipt.QR)
	require.True(t, ok, "receipt QR must be scannable")
	assert.Equal(t, 16, loyalty.PointsFor(parsed.Amount))

	st, err := f.sessions.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Cart.Count())
	assert.Equal(t, pickup.Selection{}, st.Pickup)

	stored, err := f.repo.FindByCode(ctx, receipt.Code)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "Vanille,Fraise", stored.Lines[0].Flavors)

	_, err = f.svc.Submit(ctx, "u1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmitKeepsCartWhenPersistenceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.newCode = func() (string, error) { return "AAAAAA", nil }
	require.NoError(t, f.repo.Create(ctx, &Order{UserID: "someone", StoreID: "1", PickupDate: "2025-03-12", Slot: "14:00"}))

	_, err := f.svc.AddItem(ctx, "u1", AddItemRequest{ProductLabel: "Bac (1.5L)", Flavors: []string{"Mangue"}})
	require.NoError(t, err)
	_, _, err = f.svc.SetPickup(ctx, "u1", pickup.Change{StoreID: strPtr("1"), Date: strPtr("2025-03-13"), Slot: strPtr("18:30")})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "u1")
	assert.ErrorIs(t, err, ErrCodeExhausted)

	st, err := f.sessions.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Cart.Count())
	assert.Equal(t, "2025-03-13", st.Pickup.Date)
}

func TestNewCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/api", func(c *gin.Context) { c.Set(user.UserIDKey, "u1") })
	f.handler.RegisterRoutes(rg)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCartHandlers(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := do(r, http.MethodPost, "/api/cart/items", `{"productLabel":"Bac (0.5L)","flavors":["Vanille","Fraise"],"quantity":1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/cart/items", `{"productLabel":"Bac (0.5L)","flavors":["Vanille","Fraise"],"quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp CartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2400), resp.Cart.TotalCents)
	assert.Equal(t, 3, resp.Cart.Count)

	w = do(r, http.MethodDelete, "/api/cart/items/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1600), resp.Cart.TotalCents)
	assert.Equal(t, 2, resp.Cart.Count)

	w = do(r, http.MethodDelete, "/api/cart/items/7", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Article introuvable")

	w = do(r, http.MethodPost, "/api/cart/items", `{"productLabel":"Bac (0.5L)","flavors":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "parfum")

	w = do(r, http.MethodPost, "/api/cart/items", `{"productLabel":"Bac (0.5L)","flavors":["Vanille"],"quantity":1152921504606846976}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Quantité invalide")

	w = do(r, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1600), resp.Cart.TotalCents)

	w = do(r, http.MethodDelete, "/api/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Cart.Count)
}

func TestPickupAndOrderHandlers(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := do(r, http.MethodPut, "/api/cart/pickup", `{"storeId":"1","date":"2025-03-12","slot":"14:00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPut, "/api/cart/pickup", `{"storeId":"2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var pr PickupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))
	assert.True(t, pr.DateCleared)
	assert.Empty(t, pr.Pickup.Date)

	w = do(r, http.MethodPut, "/api/cart/pickup", `{"storeId":"1","date":"2025-03-25"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	do(r, http.MethodPut, "/api/cart/pickup", `{"storeId":"1","date":"2025-03-14"}`)
	w = do(r, http.MethodPost, "/api/orders", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty cart")

	do(r, http.MethodPost, "/api/cart/items", `{"productLabel":"Bac (1L)","flavors":["Praliné"]}`)
	w = do(r, http.MethodPost, "/api/orders", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var receipt Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "Angelo Gelato Montpellier", receipt.StoreName)
	assert.Equal(t, 15.0, receipt.Payload.Amount)

	w = do(r, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orders []Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.Code, orders[0].Code)
}

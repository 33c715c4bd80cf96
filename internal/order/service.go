package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"go.uber.org/zap"
)

var ErrEmptyCart = errors.New("购物车为空")

// AddItemRequest 是加入购物车的请求，价格和口味上限取自目录
type AddItemRequest struct {
	ProductLabel string   `json:"productLabel" binding:"required"`
	Flavors      []string `json:"flavors"`
	Quantity     int      `json:"quantity"`
}

// Service 组合会话、目录和取货规则，实现购物车和下单流程
type Service struct {
	sessions *session.Manager
	repo     *Repository
	catalog  *catalog.Catalog
	rules    *pickup.Rules
	now      func() time.Time
}

func NewService(sessions *session.Manager, repo *Repository, cat *catalog.Catalog, rules *pickup.Rules) *Service {
	return &Service{sessions: sessions, repo: repo, catalog: cat, rules: rules, now: time.Now}
}

// AddItem 校验并追加一行商品。数量缺省为1。
func (s *Service) AddItem(ctx context.Context, userID string, req AddItemRequest) (session.State, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	item, err := s.catalog.BuildItem(req.ProductLabel, req.Flavors, req.Quantity)
	if err != nil {
		return session.State{}, err
	}
	return s.sessions.Update(ctx, userID, func(st *session.State) error {
		return st.Cart.Add(item)
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID string, position int) (session.State, error) {
	return s.sessions.Update(ctx, userID, func(st *session.State) error {
		_, err := st.Cart.Remove(position)
		return err
	})
}

func (s *Service) ClearCart(ctx context.Context, userID string) (session.State, error) {
	return s.sessions.Update(ctx, userID, func(st *session.State) error {
		st.Cart.Clear()
		return nil
	})
}

// SetPickup 修改取货选择，返回新状态以及日期是否因换店被清空
func (s *Service) SetPickup(ctx context.Context, userID string, ch pickup.Change) (session.State, bool, error) {
	var cleared bool
	st, err := s.sessions.Update(ctx, userID, func(st *session.State) error {
		next, c, err := s.rules.Apply(st.Pickup, ch, s.now())
		if err != nil {
			return err
		}
		st.Pickup, cleared = next, c
		return nil
	})
	return st, cleared, err
}

// Submit 校验取货选择、保存订单并清空购物车。保存失败时购物车保持不变。
func (s *Service) Submit(ctx context.Context, userID string) (Receipt, error) {
	var placed Order
	now := s.now()

	res := s.sessions.Commit(ctx, userID,
		func(st *session.State) error {
			if st.Cart.Len() == 0 {
				return ErrEmptyCart
			}
			if err := s.rules.Submittable(st.Pickup, now); err != nil {
				return err
			}
			placed = Order{
				UserID:     userID,
				StoreID:    st.Pickup.StoreID,
				PickupDate: st.Pickup.Date,
				Slot:       st.Pickup.Slot,
				TotalCents: st.Cart.TotalCents(),
				Lines:      linesFromCart(st.Cart.Items()),
			}
			st.Cart.Clear()
			st.Pickup = pickup.Selection{}
			return nil
		},
		func(ctx context.Context, _ *session.State) error {
			return s.repo.Create(ctx, &placed)
		},
	)
	if !res.OK() {
		return Receipt{}, res.Err
	}

	logging.L().Info("订单已确认",
		zap.String("user", userID), zap.String("code", placed.Code), zap.Int64("totalCents", placed.TotalCents))
	return s.receipt(placed)
}

func (s *Service) receipt(o Order) (Receipt, error) {
	store, _ := s.rules.Store(o.StoreID)
	payload := ReceiptPayload{
		Code:   o.Code,
		Amount: float64(o.TotalCents) / 100,
		Date:   o.PickupDate,
	}
	qr, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("无法生成二维码内容: %w", err)
	}

	date := o.PickupDate
	if d, err := pickup.ParseDate(o.PickupDate, s.rules.Location()); err == nil {
		date = d.Format("02/01/2006")
	}
	return Receipt{
		OrderID:    o.ID,
		Code:       o.Code,
		StoreID:    o.StoreID,
		StoreName:  store.Name,
		PickupDate: o.PickupDate,
		Slot:       o.Slot,
		TotalCents: o.TotalCents,
		Payload:    payload,
		QR:         string(qr),
		Message: fmt.Sprintf("Commande %s confirmée ! À récupérer le %s à %s chez %s. "+
			"Montrez ce code lors du retrait pour gagner vos points fidélité !", o.Code, date, o.Slot, store.Name),
	}, nil
}

// History 返回用户的历史订单
func (s *Service) History(ctx context.Context, userID string) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

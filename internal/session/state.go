package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/cart"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
)

// Theme 是界面主题
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid 判断主题是否为已知取值
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggle 返回另一个主题
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// State 是一个已登录用户的全部会话状态
type State struct {
	User   user.Profile
	Cart   cart.Cart
	Theme  Theme
	Pickup pickup.Selection
}

// Clone 深拷贝，修改副本不会影响原状态
func (s State) Clone() State {
	return State{
		User:   s.User.Clone(),
		Cart:   s.Cart.Clone(),
		Theme:  s.Theme,
		Pickup: s.Pickup,
	}
}

// View 是 State 对外的只读表示
type View struct {
	User   user.Profile     `json:"user"`
	Cart   cart.Snapshot    `json:"cart"`
	Theme  Theme            `json:"theme"`
	Pickup pickup.Selection `json:"pickup"`
}

func (s State) View() View {
	return View{User: s.User.Clone(), Cart: s.Cart.View(), Theme: s.Theme, Pickup: s.Pickup}
}

// snapshotVersion 在快照格式不兼容地变化时递增
const snapshotVersion = 1

// snapshot 是写入本地快照槽的序列化格式
type snapshot struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"savedAt"`
	User    user.Profile     `json:"user"`
	Cart    []cart.Item      `json:"cart"`
	Theme   Theme            `json:"theme"`
	Pickup  pickup.Selection `json:"pickup"`
}

func encodeSnapshot(s State, now time.Time) ([]byte, error) {
	return json.Marshal(snapshot{
		Version: snapshotVersion,
		SavedAt: now.UTC(),
		User:    s.User,
		Cart:    s.Cart.Items(),
		Theme:   s.Theme,
		Pickup:  s.Pickup,
	})
}

func decodeSnapshot(data []byte) (State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return State{}, fmt.Errorf("无法解析会话快照: %w", err)
	}
	if snap.Version != snapshotVersion {
		return State{}, fmt.Errorf("不支持的会话快照版本: %d", snap.Version)
	}
	theme := snap.Theme
	if !theme.Valid() {
		theme = ThemeLight
	}
	return State{
		User:   snap.User,
		Cart:   cart.Restore(snap.Cart),
		Theme:  theme,
		Pickup: snap.Pickup,
	}, nil
}

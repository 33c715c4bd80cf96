package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoFlavor           = errors.New("至少需要选择一个口味")
	ErrTooManyFlavors     = errors.New("口味数量超过上限")
	ErrInvalidQuantity    = errors.New("数量必须在1到99之间")
	ErrInvalidPrice       = errors.New("单价超出允许范围")
	ErrPositionOutOfRange = errors.New("购物车位置越界")
)

const (
	// MaxQuantity 是单行商品的数量上限
	MaxQuantity = 99
	// MaxUnitPriceCents 是单价上限（一万欧元），保证合计不会溢出
	MaxUnitPriceCents = 1_000_000
)

// Item 是购物车中的一行。价格以分为单位保存，避免浮点误差。
type Item struct {
	ProductLabel   string   `json:"productLabel"`
	UnitPriceCents int64    `json:"unitPriceCents"`
	Flavors        []string `json:"flavors"`
	Quantity       int      `json:"quantity"`
	MaxFlavors     int      `json:"maxFlavors"`
}

// LineTotalCents 返回单价乘以数量
func (i Item) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// Cart 是一个会话内的有序购物车。零值即为空购物车。
// Cart 本身不加锁，由持有它的会话负责串行化。
type Cart struct {
	items []Item
	count int
}

// normalizeFlavors 去掉空白和重复的口味，保留首次出现的顺序
func normalizeFlavors(flavors []string) []string {
	seen := make(map[string]struct{}, len(flavors))
	out := make([]string, 0, len(flavors))
	for _, f := range flavors {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Validate 检查一行商品是否可以加入购物车，返回规范化后的副本
func Validate(item Item) (Item, error) {
	flavors := normalizeFlavors(item.Flavors)
	if len(flavors) == 0 {
		return Item{}, ErrNoFlavor
	}
	if item.MaxFlavors > 0 && len(flavors) > item.MaxFlavors {
		return Item{}, fmt.Errorf("%w: 选择了%d个，最多%d个", ErrTooManyFlavors, len(flavors), item.MaxFlavors)
	}
	if item.Quantity < 1 || item.Quantity > MaxQuantity {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, item.Quantity)
	}
	if item.UnitPriceCents < 0 || item.UnitPriceCents > MaxUnitPriceCents {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidPrice, item.UnitPriceCents)
	}
	item.Flavors = flavors
	return item, nil
}

// Add 校验后把商品追加到末尾。校验失败时购物车保持不变。
func (c *Cart) Add(item Item) error {
	valid, err := Validate(item)
	if err != nil {
		return err
	}
	c.items = append(c.items, valid)
	c.count += valid.Quantity
	return nil
}

// Remove 删除指定位置的商品并返回它
func (c *Cart) Remove(position int) (Item, error) {
	if position < 0 || position >= len(c.items) {
		return Item{}, fmt.Errorf("%w: %d (共%d行)", ErrPositionOutOfRange, position, len(c.items))
	}
	removed := c.items[position]
	items := make([]Item, 0, len(c.items)-1)
	items = append(items, c.items[:position]...)
	items = append(items, c.items[position+1:]...)
	c.items = items
	c.count -= removed.Quantity
	return removed, nil
}

// Clear 清空购物车
func (c *Cart) Clear() {
	c.items = nil
	c.count = 0
}

// TotalCents 每次都从当前内容重新求和
func (c *Cart) TotalCents() int64 {
	var total int64
	for _, item := range c.items {
		total += item.LineTotalCents()
	}
	return total
}

// Count 返回所有商品数量之和
func (c *Cart) Count() int {
	return c.count
}

// Len 返回行数
func (c *Cart) Len() int {
	return len(c.items)
}

// Items 返回购物车内容的深拷贝
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	for i, item := range c.items {
		item.Flavors = append([]string(nil), item.Flavors...)
		out[i] = item
	}
	return out
}

// Clone 返回一个互不影响的副本，供会话做两阶段更新
func (c *Cart) Clone() Cart {
	return Cart{items: c.Items(), count: c.count}
}

// Restore 用快照内容重建购物车，数量从内容重新计算
func Restore(items []Item) Cart {
	var c Cart
	for _, item := range items {
		item.Flavors = append([]string(nil), item.Flavors...)
		c.items = append(c.items, item)
		c.count += item.Quantity
	}
	return c
}

// Snapshot 是购物车在快照和API中的表示
type Snapshot struct {
	Items      []Item  `json:"items"`
	Count      int     `json:"count"`
	TotalCents int64   `json:"totalCents"`
	Total      float64 `json:"total"`
}

// View 生成当前购物车的只读视图
func (c *Cart) View() Snapshot {
	total := c.TotalCents()
	return Snapshot{
		Items:      c.Items(),
		Count:      c.count,
		TotalCents: total,
		Total:      float64(total) / 100,
	}
}

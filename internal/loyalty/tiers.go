package loyalty

import (
	"errors"
	"fmt"
)

// Tier 是一个会员等级：达到 MinPoints 累计积分即可获得
type Tier struct {
	Label     string `json:"label" yaml:"label"`
	MinPoints int    `json:"minPoints" yaml:"minPoints"`
	Glyph     string `json:"glyph" yaml:"glyph"`
}

// Table 是按 MinPoints 升序排列的不可变等级表
type Table struct {
	tiers []Tier
}

var (
	ErrEmptyTable       = errors.New("等级表为空")
	ErrFirstTierNotZero = errors.New("第一个等级的门槛必须为0")
)

// DefaultTiers 是门店目前使用的等级表
var DefaultTiers = []Tier{
	{Label: "Bronze", MinPoints: 0, Glyph: "🥉"},
	{Label: "Argent", MinPoints: 200, Glyph: "🥈"},
	{Label: "Or", MinPoints: 500, Glyph: "🥇"},
	{Label: "Platine", MinPoints: 1000, Glyph: "💎"},
	{Label: "Diamant", MinPoints: 2500, Glyph: "👑"},
}

// NewTable 校验等级表的不变量并返回一个副本
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyTable
	}
	if tiers[0].MinPoints != 0 {
		return nil, ErrFirstTierNotZero
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinPoints <= tiers[i-1].MinPoints {
			return nil, fmt.Errorf("等级 %q 的门槛 %d 没有严格大于上一级 %q 的 %d",
				tiers[i].Label, tiers[i].MinPoints, tiers[i-1].Label, tiers[i-1].MinPoints)
		}
	}
	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return &Table{tiers: copied}, nil
}

// MustDefaultTable 返回默认等级表，表本身是常量，校验失败说明代码被改坏了
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultTiers)
	if err != nil {
		panic(err)
	}
	return t
}

// Tiers 返回等级表的副本
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Lookup 按名称查找等级
func (t *Table) Lookup(label string) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.Label == label {
			return tier, true
		}
	}
	return Tier{}, false
}

// Top 返回最高等级
func (t *Table) Top() Tier {
	return t.tiers[len(t.tiers)-1]
}

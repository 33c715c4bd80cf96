package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/cart"
	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownProduct = errors.New("未知的商品")
	ErrUnknownFlavor  = errors.New("未知的口味")
)

// Product 是可以下单的一种商品
type Product struct {
	Label      string `json:"label" yaml:"label"`
	PriceCents int64  `json:"priceCents" yaml:"priceCents"`
	MaxFlavors int    `json:"maxFlavors" yaml:"maxFlavors"`
}

// Catalog 是启动时加载的静态目录，加载后只读
type Catalog struct {
	Products []Product      `json:"products" yaml:"products"`
	Flavors  []string       `json:"flavors" yaml:"flavors"`
	Stores   []pickup.Store `json:"stores" yaml:"stores"`
	Tiers    []loyalty.Tier `json:"tiers" yaml:"tiers"`
}

// Load 解析一份YAML目录并校验
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析目录失败: %w", err)
	}
	if len(c.Products) == 0 {
		return nil, errors.New("目录中没有商品")
	}
	for _, p := range c.Products {
		if p.PriceCents < 0 || p.MaxFlavors < 1 {
			return nil, fmt.Errorf("商品 %q 的价格或口味上限无效", p.Label)
		}
	}
	if len(c.Flavors) == 0 {
		return nil, errors.New("目录中没有口味")
	}
	if _, err := loyalty.NewTable(c.Tiers); err != nil {
		return nil, fmt.Errorf("目录中的等级表无效: %w", err)
	}
	return &c, nil
}

// Default 返回内置的门店目录
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

// Open 从文件加载目录，path 为空时使用内置目录
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取目录文件失败: %w", err)
	}
	return Load(data)
}

func (c *Catalog) Product(label string) (Product, bool) {
	for _, p := range c.Products {
		if p.Label == label {
			return p, true
		}
	}
	return Product{}, false
}

// TierTable 根据目录构建等级表
func (c *Catalog) TierTable() (*loyalty.Table, error) {
	return loyalty.NewTable(c.Tiers)
}

// PickupRules 根据目录中的门店构建取货规则
func (c *Catalog) PickupRules(windowDays int, loc *time.Location) (*pickup.Rules, error) {
	return pickup.NewRules(c.Stores, windowDays, loc)
}

// BuildItem 用目录中的价格和口味上限构造一行购物车商品。
// 价格只信任目录，不接受客户端传入。
func (c *Catalog) BuildItem(productLabel string, flavors []string, quantity int) (cart.Item, error) {
	product, ok := c.Product(productLabel)
	if !ok {
		return cart.Item{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productLabel)
	}
	for _, f := range flavors {
		f = strings.TrimSpace(f)
		if f != "" && !slices.Contains(c.Flavors, f) {
			return cart.Item{}, fmt.Errorf("%w: %s", ErrUnknownFlavor, f)
		}
	}
	return cart.Validate(cart.Item{
		ProductLabel:   product.Label,
		UnitPriceCents: product.PriceCents,
		Flavors:        flavors,
		Quantity:       quantity,
		MaxFlavors:     product.MaxFlavors,
	})
}

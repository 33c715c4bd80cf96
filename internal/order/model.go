package order

import (
	"strings"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/cart"
)

// Order 是一笔已确认的取货订单
type Order struct {
	ID         string `gorm:"primarykey;type:varchar(36)" json:"id"`
	Code       string `gorm:"uniqueIndex;size:6;not null" json:"code"`
	UserID     string `gorm:"index;type:varchar(36);not null" json:"-"`
	StoreID    string `gorm:"size:16;not null" json:"storeId"`
	PickupDate string `gorm:"size:10;not null" json:"pickupDate"`
	Slot       string `gorm:"size:5;not null" json:"slot"`
	TotalCents int64  `json:"totalCents"`
	Lines      []Line `gorm:"foreignKey:OrderID" json:"lines"`

	CreatedAt time.Time `json:"createdAt"`
}

// Line 是订单中的一行，口味用逗号连接保存
type Line struct {
	ID             uint   `gorm:"primarykey" json:"-"`
	OrderID        string `gorm:"index;type:varchar(36);not null" json:"-"`
	Position       int    `json:"position"`
	ProductLabel   string `json:"productLabel"`
	Flavors        string `json:"flavors"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

func linesFromCart(items []cart.Item) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		lines[i] = Line{
			Position:       i,
			ProductLabel:   it.ProductLabel,
			Flavors:        strings.Join(it.Flavors, ","),
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		}
	}
	return lines
}

// ReceiptPayload 是订单二维码中的内容，门店扫码后用于积分
type ReceiptPayload struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

// Receipt 是下单成功后返回给客户端的内容
type Receipt struct {
	OrderID    string         `json:"orderId"`
	Code       string         `json:"code"`
	StoreID    string         `json:"storeId"`
	StoreName  string         `json:"storeName"`
	PickupDate string         `json:"pickupDate"`
	Slot       string         `json:"slot"`
	TotalCents int64          `json:"totalCents"`
	Payload    ReceiptPayload `json:"payload"`
	// QR 是 Payload 的JSON文本，可以直接生成二维码
	QR      string `json:"qr"`
	Message string `json:"message"`
}

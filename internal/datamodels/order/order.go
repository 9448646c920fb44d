package order

import (
	"context"
	"time"
)

// 订单状态，入库统一大写
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusExpired   = "EXPIRED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// IsTerminal 终态订单不再接受任何状态迁移
func IsTerminal(status string) bool {
	switch status {
	case StatusPaid, StatusExpired, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Order 订单模型，external_id 是与支付网关对账的唯一关联键
type Order struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	Amount     int64  `gorm:"not null" json:"amount"` // 印尼盾，最小单位
	Status     string `gorm:"size:16;index;not null;default:PENDING" json:"status"`

	Items []Item `gorm:"foreignKey:OrderID" json:"items"`

	CustomerName  string `gorm:"size:128" json:"customer_name"`
	CustomerEmail string `gorm:"size:128;not null" json:"customer_email"`
	CustomerPhone string `gorm:"size:32" json:"customer_phone"`

	XenditInvoiceURL string `gorm:"size:512" json:"xendit_invoice_url"`

	// 以下字段仅在迁移到 PAID 时写入
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	PaidAmount         int64      `json:"paid_amount,omitempty"`
	PaymentMethod      string     `gorm:"size:64" json:"payment_method,omitempty"`
	PaymentChannel     string     `gorm:"size:64" json:"payment_channel,omitempty"`
	PaymentDestination string     `gorm:"size:128" json:"payment_destination,omitempty"`

	WhatsappSuccessSent   bool       `json:"whatsapp_success_sent"`
	WhatsappSuccessSentAt *time.Time `json:"whatsapp_success_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item 下单时固化的商品行
type Item struct {
	ID        int64  `gorm:"primaryKey" json:"-"`
	OrderID   int64  `gorm:"index;not null" json:"-"`
	ProductID int64  `json:"product_id,omitempty"`
	Name      string `gorm:"size:128;not null" json:"name"`
	Price     int64  `gorm:"not null" json:"price"`
	Quantity  int64  `gorm:"not null;default:1" json:"quantity"`
}

// Transition 一次状态迁移要写入的字段集合
type Transition struct {
	ToStatus           string
	PaidAt             *time.Time
	PaidAmount         int64
	PaymentMethod      string
	PaymentChannel     string
	PaymentDestination string
}

// Repository 订单仓储接口
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	ListRecent(ctx context.Context, limit int) ([]*Order, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*Order, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	SumPaidAmount(ctx context.Context) (int64, error)

	// ApplyTransition 以单条条件 UPDATE 完成 PENDING → 目标状态的迁移，
	// applied=false 表示没有命中待迁移行（不存在或已处于终态），由调用方再查明原因。
	ApplyTransition(ctx context.Context, externalID string, tr Transition) (o *Order, applied bool, err error)

	// MarkNotified 标记支付成功通知已送达
	MarkNotified(ctx context.Context, externalID string, at time.Time) error
}

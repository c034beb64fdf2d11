package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	Title       string          `gorm:"not null"                    json:"title"`
	Description string          `gorm:"not null"                    json:"description"`
	Price       decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"price"`
	Count       uint            `json:"count"`
}

type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string `gorm:"unique;not null"          json:"email"`
	Username  string `gorm:"unique;not null"          json:"username"`
	FirstName string `json:"first_name"`
	Role      string `gorm:"not null;default:user"    json:"role"`
}

// Cart belongs either to a user or to an anonymous session, never both.
// The unique indexes are what keeps concurrent get-or-create from
// producing two carts for the same key.
type Cart struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     *uint     `gorm:"uniqueIndex"              json:"user_id,omitempty"`
	SessionKey *string   `gorm:"uniqueIndex;size:100"     json:"session_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CartItem keeps at most one row per (cart, product); adds accumulate
// quantity instead of duplicating. UnitPrice is snapshotted at first add.
type CartItem struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"             json:"id"`
	CartID    uint            `gorm:"uniqueIndex:ux_cart_product;not null" json:"cart_id"`
	ProductID uint            `gorm:"uniqueIndex:ux_cart_product;not null" json:"product_id"`
	Quantity  uint            `gorm:"default:1;check:quantity>0"           json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"not null;type:decimal(10,2)"          json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	UserID          *uint           `gorm:"index"                       json:"user_id,omitempty"`
	CartID          *uint           `json:"cart_id,omitempty"`
	Status          string          `gorm:"not null;default:pending"    json:"status"`
	TotalAmount     decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	ContactEmail    string          `json:"contact_email"`
	ContactPhone    string          `json:"contact_phone"`
	ContactName     string          `json:"contact_name"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is an immutable snapshot of a product at order time. The
// product reference is RESTRICT, not cascade: a product cannot be deleted
// while an order line points at it.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"     json:"id"`
	OrderID   uint            `gorm:"index;not null"               json:"order_id"`
	ProductID uint            `gorm:"not null"                     json:"product_id"`
	Product   Product         `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Quantity  uint            `gorm:"default:1;check:quantity>0"   json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"not null;type:decimal(10,2)"  json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

const (
	PaymentStatusPending           = "pending"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusFailed            = "failed"
	PaymentStatusCancelled         = "cancelled"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
)

// PaymentTransaction is one attempt to collect payment for an order.
// RefundedAmount is derived from the refund ledger and never hand-set
// outside the payment service.
type PaymentTransaction struct {
	ID             uint              `gorm:"primaryKey;autoIncrement"        json:"id"`
	OrderID        *uint             `gorm:"index"                           json:"order_id,omitempty"`
	UserID         *uint             `json:"user_id,omitempty"`
	Amount         decimal.Decimal   `gorm:"not null;type:decimal(10,2)"     json:"amount"`
	Currency       string            `gorm:"not null;default:USD;size:8"     json:"currency"`
	Status         string            `gorm:"not null;default:pending"        json:"status"`
	Provider       string            `gorm:"index:idx_provider_ref;size:50"  json:"provider"`
	ProviderID     string            `gorm:"index:idx_provider_ref;size:128" json:"provider_id"`
	RefundedAmount decimal.Decimal   `gorm:"not null;type:decimal(10,2);default:0" json:"refunded_amount"`
	Metadata       map[string]string `gorm:"serializer:json"                 json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

type Refund struct {
	ID               uint              `gorm:"primaryKey;autoIncrement"    json:"id"`
	PaymentID        uint              `gorm:"index;not null"              json:"payment_id"`
	Amount           decimal.Decimal   `gorm:"not null;type:decimal(10,2)" json:"amount"`
	Currency         string            `gorm:"not null;default:USD;size:8" json:"currency"`
	Status           string            `gorm:"not null;default:pending"    json:"status"`
	Provider         string            `gorm:"size:50"                     json:"provider"`
	ProviderRefundID string            `gorm:"size:128"                    json:"provider_refund_id"`
	Metadata         map[string]string `gorm:"serializer:json"             json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

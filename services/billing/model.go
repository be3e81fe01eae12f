package billing

import (
	"time"

	"gorm.io/datatypes"

	"license-controlplane/services/license"
)

// SubscriptionPlan is the catalog row behind a license plan code. The signed
// license carries a snapshot of these values, so editing a plan never mutates
// already-issued licenses.
type SubscriptionPlan struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Code        license.Plan   `gorm:"column:code;uniqueIndex" json:"code"`
	Name        string         `gorm:"column:name" json:"name"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	PriceCents  int64          `gorm:"column:price_cents" json:"price_cents"`
	Currency    string         `gorm:"column:currency;default:BRL" json:"currency"`
	Period      string         `gorm:"column:period;default:monthly" json:"period"`
	MaxUsers    int            `gorm:"column:max_users" json:"max_users"`
	Features    datatypes.JSON `gorm:"column:features" json:"features"`
	Limits      datatypes.JSON `gorm:"column:limits" json:"limits"`
	Active      bool           `gorm:"column:active;default:true" json:"active"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentTransaction struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	TenantID   string       `gorm:"column:tenant_id;index" json:"tenant_id"`
	TenantCode string       `gorm:"column:tenant_code;index" json:"tenant_code"`
	PlanCode   license.Plan `gorm:"column:plan_code" json:"plan_code"`

	AmountCents int64         `gorm:"column:amount_cents" json:"amount_cents"`
	Currency    string        `gorm:"column:currency;default:BRL" json:"currency"`
	Method      string        `gorm:"column:payment_method" json:"payment_method,omitempty"`
	Status      PaymentStatus `gorm:"column:status;index" json:"status"`
	Reference   string        `gorm:"column:reference" json:"reference,omitempty"`
	Notes       string        `gorm:"column:notes" json:"notes,omitempty"`

	PaidAt *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

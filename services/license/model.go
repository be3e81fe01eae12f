package license

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

type Plan string

const (
	PlanTrial        Plan = "trial"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
	PlanUnlimited    Plan = "unlimited"
)

// Limits is the per-plan usage ceiling embedded in the signed payload.
type Limits struct {
	MaxUsers        int  `json:"max_users"`
	MaxCustomers    int  `json:"max_customers"`
	MaxProducts     int  `json:"max_products"`
	MaxTransactions int  `json:"max_transactions"`
	Unlimited       bool `json:"unlimited,omitempty"`
}

// DefaultLimits returns the stock ceiling for a plan. Unknown plans get the
// trial limits.
func DefaultLimits(p Plan) Limits {
	switch p {
	case PlanStarter:
		return Limits{MaxUsers: 3, MaxCustomers: 500, MaxProducts: 1000, MaxTransactions: 5000}
	case PlanProfessional:
		return Limits{MaxUsers: 10, MaxCustomers: 5000, MaxProducts: 10000, MaxTransactions: 50000}
	case PlanEnterprise:
		return Limits{MaxUsers: 50, MaxCustomers: 50000, MaxProducts: 100000, MaxTransactions: 500000}
	case PlanUnlimited:
		return Limits{Unlimited: true}
	default:
		return Limits{MaxUsers: 1, MaxCustomers: 50, MaxProducts: 100, MaxTransactions: 500}
	}
}

// DefaultFeatures returns the feature flags granted by a plan.
func DefaultFeatures(p Plan) []string {
	switch p {
	case PlanStarter:
		return []string{"basic_reports", "inventory"}
	case PlanProfessional:
		return []string{"basic_reports", "inventory", "advanced_reports", "multi_branch"}
	case PlanEnterprise, PlanUnlimited:
		return []string{"basic_reports", "inventory", "advanced_reports", "multi_branch", "api_access", "priority_support"}
	default:
		return []string{"basic_reports"}
	}
}

type License struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
	LicenseKey string    `gorm:"column:license_key;uniqueIndex" json:"license_key"`
	ClientID   string    `gorm:"column:client_id;index" json:"client_id"`

	Plan     Plan           `gorm:"column:plan" json:"plan"`
	Features datatypes.JSON `gorm:"column:features" json:"features"`
	Limits   datatypes.JSON `gorm:"column:limits" json:"limits"`
	MaxUsers int            `gorm:"column:max_users" json:"max_users"`

	Status Status `gorm:"column:status;index" json:"status"`

	HardwareID   string         `gorm:"column:hardware_id" json:"hardware_id,omitempty"`
	HardwareInfo datatypes.JSON `gorm:"column:hardware_info" json:"hardware_info,omitempty"`

	IssuedAt        time.Time  `gorm:"column:issued_at" json:"issued_at"`
	ExpiresAt       *time.Time `gorm:"column:expires_at" json:"expires_at"`
	ActivatedAt     *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	LastValidatedAt *time.Time `gorm:"column:last_validated_at" json:"last_validated_at,omitempty"`
	LastHeartbeatAt *time.Time `gorm:"column:last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
	RevokedAt       *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`

	Signature string `gorm:"column:signature;type:text" json:"-"`
	Notes     string `gorm:"column:notes" json:"notes,omitempty"`
}

func (License) TableName() string { return "licenses" }

// IsExpired reports whether the license's expiry has passed at ts.
func (l *License) IsExpired(ts time.Time) bool {
	return l.ExpiresAt != nil && ts.After(*l.ExpiresAt)
}

// DaysUntilExpiry is the whole number of days left, never negative.
func (l *License) DaysUntilExpiry(ts time.Time) int {
	if l.ExpiresAt == nil {
		return 0
	}
	d := int(l.ExpiresAt.Sub(ts).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Validation is an append-only audit row, one per activation or heartbeat
// attempt, successful or not.
type Validation struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	LicenseID    string    `gorm:"column:license_id;index" json:"license_id"`
	IP           string    `gorm:"column:ip" json:"ip"`
	UserAgent    string    `gorm:"column:user_agent;size:500" json:"user_agent"`
	HardwareID   string    `gorm:"column:hardware_id" json:"hardware_id"`
	Type         string    `gorm:"column:type" json:"type"` // activation | heartbeat
	Success      bool      `gorm:"column:success" json:"success"`
	ErrorMessage string    `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (Validation) TableName() string { return "license_validations" }

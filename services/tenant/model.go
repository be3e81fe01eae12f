package tenant

import (
	"regexp"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusTrial        Status = "trial"
	StatusTrialExpired Status = "trial_expired"
	StatusCancelled    Status = "cancelled"
	StatusError        Status = "error"
)

// CanLogin reports whether a tenant in this status may authenticate.
func (s Status) CanLogin() bool {
	switch s {
	case StatusActive, StatusTrial:
		return true
	default:
		return false
	}
}

type Tenant struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	TenantCode string `gorm:"column:tenant_code;uniqueIndex" json:"tenant_code"`

	Name      string `gorm:"column:name" json:"name"`
	TradeName string `gorm:"column:trade_name" json:"trade_name,omitempty"`
	Document  string `gorm:"column:document;uniqueIndex" json:"document"`
	Email     string `gorm:"column:email;uniqueIndex" json:"email"`
	Phone     string `gorm:"column:phone" json:"phone,omitempty"`

	DatabaseName     string `gorm:"column:database_name" json:"database_name"`
	DatabaseUser     string `gorm:"column:database_user" json:"database_user"`
	DatabasePassword string `gorm:"column:database_password" json:"-"`

	Subdomain string `gorm:"column:subdomain;uniqueIndex" json:"subdomain,omitempty"`

	// InitialPasswordHash records the SHA-256 of the registration document,
	// the credential seeded into the tenant database for the first login.
	// Logins always verify against the tenant database; this column is an
	// audit copy of what provisioning seeded.
	InitialPasswordHash string `gorm:"column:initial_password_hash" json:"-"`
	PasswordChanged     bool   `gorm:"column:password_changed" json:"password_changed"`

	ClientID  string `gorm:"column:client_id;index" json:"client_id,omitempty"`
	LicenseID string `gorm:"column:license_id;index" json:"license_id,omitempty"`

	Status    Status `gorm:"column:status;index" json:"status"`
	IsTrial   bool   `gorm:"column:is_trial" json:"is_trial"`
	TrialDays int    `gorm:"column:trial_days" json:"trial_days"`

	RegisteredAt   time.Time  `gorm:"column:registered_at" json:"registered_at"`
	ProvisionedAt  *time.Time `gorm:"column:provisioned_at" json:"provisioned_at,omitempty"`
	ActivatedAt    *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	TrialExpiresAt *time.Time `gorm:"column:trial_expires_at" json:"trial_expires_at,omitempty"`
	SuspendedAt    *time.Time `gorm:"column:suspended_at" json:"suspended_at,omitempty"`
	CancelledAt    *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	Notes    string         `gorm:"column:notes" json:"notes,omitempty"`
}

func (Tenant) TableName() string { return "tenants" }

// TrialExpired reports whether a trial tenant's window has closed at ts.
func (t *Tenant) TrialExpired(ts time.Time) bool {
	return t.IsTrial && t.TrialExpiresAt != nil && ts.After(*t.TrialExpiresAt)
}

var digitsOnly = regexp.MustCompile(`\D`)

// DeriveTenantCode strips a CPF/CNPJ down to its digits.
func DeriveTenantCode(document string) string {
	return digitsOnly.ReplaceAllString(document, "")
}

// DeriveDatabaseName returns the conventional tenant database name.
func DeriveDatabaseName(document string) string {
	return "cliente_" + DeriveTenantCode(document)
}

// DeriveDatabaseUser returns the conventional tenant role name.
func DeriveDatabaseUser(document string) string {
	return "user_" + DeriveTenantCode(document)
}

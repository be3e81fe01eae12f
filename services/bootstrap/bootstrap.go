package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/security"
	"license-controlplane/services/auth"
	"license-controlplane/services/billing"
	"license-controlplane/services/client"
	"license-controlplane/services/license"
	"license-controlplane/services/tenant"
)

var Module = fx.Module("bootstrap",
	fx.Invoke(register),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	DB        *gorm.DB
	Node      *gen.SnowflakeNode
	Billing   *billing.Service
}

func register(p Params) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := migrate(p.DB); err != nil {
				return err
			}
			if err := p.Billing.SeedPlans(ctx); err != nil {
				return err
			}
			return seedAdmin(ctx, p)
		},
	})
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&client.Client{},
		&license.License{},
		&license.Validation{},
		&tenant.Tenant{},
		&auth.AdminUser{},
		&billing.SubscriptionPlan{},
		&billing.PaymentTransaction{},
	)
}

// seedAdmin creates the first operator account when the table is empty. The
// seeded password must be rotated on first login.
func seedAdmin(ctx context.Context, p Params) error {
	if p.Config.Bootstrap.AdminEmail == "" || p.Config.Bootstrap.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := p.DB.WithContext(ctx).Model(&auth.AdminUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := security.HashBcrypt(p.Config.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}

	admin := &auth.AdminUser{
		ID:           p.Node.GenerateID().String(),
		Email:        p.Config.Bootstrap.AdminEmail,
		Name:         p.Config.Bootstrap.AdminName,
		PasswordHash: hash,
		Active:       true,
		MustChange:   true,
	}
	if err := p.DB.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	zap.L().Info("seeded initial admin user", zap.String("email", admin.Email))
	return nil
}

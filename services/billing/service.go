package billing

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
	"license-controlplane/services/license"
	"license-controlplane/services/tenant"
)

type Service struct {
	db       *gorm.DB
	plans    repository.Repository[SubscriptionPlan]
	payments repository.Repository[PaymentTransaction]
	tenants  repository.Repository[tenant.Tenant]
	node     *gen.SnowflakeNode

	now func() time.Time
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *gen.SnowflakeNode
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		plans:    repository.ProvideStore[SubscriptionPlan](p.DB),
		payments: repository.ProvideStore[PaymentTransaction](p.DB),
		tenants:  repository.ProvideStore[tenant.Tenant](p.DB),
		node:     p.Node,
		now:      time.Now,
	}
}

type seedPlan struct {
	code       license.Plan
	name       string
	priceCents int64
}

var seedPlans = []seedPlan{
	{license.PlanTrial, "Trial", 0},
	{license.PlanStarter, "Starter", 4990},
	{license.PlanProfessional, "Professional", 9990},
	{license.PlanEnterprise, "Enterprise", 29990},
}

// SeedPlans inserts the stock plan catalog. Rows that already exist are left
// untouched, so operators can reprice plans without fighting the seeder.
func (s *Service) SeedPlans(ctx context.Context) error {
	for _, sp := range seedPlans {
		exist, err := s.plans.FindOne(ctx, &SubscriptionPlan{Code: sp.code})
		if err != nil {
			return err
		}
		if exist != nil {
			continue
		}

		limits := license.DefaultLimits(sp.code)
		limitsJSON, err := json.Marshal(limits)
		if err != nil {
			return err
		}
		featuresJSON, err := json.Marshal(license.DefaultFeatures(sp.code))
		if err != nil {
			return err
		}

		plan := &SubscriptionPlan{
			ID:         s.node.GenerateID().String(),
			Code:       sp.code,
			Name:       sp.name,
			PriceCents: sp.priceCents,
			Currency:   "BRL",
			Period:     "monthly",
			MaxUsers:   limits.MaxUsers,
			Features:   datatypes.JSON(featuresJSON),
			Limits:     datatypes.JSON(limitsJSON),
			Active:     true,
		}
		if err := s.plans.Create(ctx, plan); err != nil {
			return err
		}
		zap.L().Info("seeded subscription plan", zap.String("code", string(sp.code)))
	}
	return nil
}

func (s *Service) ListPlans(ctx context.Context) ([]*SubscriptionPlan, error) {
	plans, err := s.plans.Find(ctx, &SubscriptionPlan{})
	if err != nil {
		return nil, errutil.Internal("failed to list plans", err)
	}
	return plans, nil
}

func (s *Service) PlanByCode(ctx context.Context, code string) (*SubscriptionPlan, error) {
	plan, err := s.plans.FindOne(ctx, &SubscriptionPlan{Code: license.Plan(code)})
	if err != nil {
		return nil, errutil.Internal("failed to query plan", err)
	}
	if plan == nil {
		return nil, errutil.NotFound("plan not found", nil)
	}
	return plan, nil
}

type RecordPaymentRequest struct {
	PlanCode    string `json:"plan_code" binding:"required"`
	AmountCents *int64 `json:"amount_cents"`
	Method      string `json:"payment_method"`
	Reference   string `json:"reference"`
	Notes       string `json:"notes"`
}

// RecordPayment opens a pending transaction against a tenant. The amount
// defaults to the current catalog price when the caller omits it.
func (s *Service) RecordPayment(ctx context.Context, tenantCode string, req RecordPaymentRequest) (*PaymentTransaction, error) {
	t, err := s.tenants.FindOne(ctx, &tenant.Tenant{TenantCode: tenantCode})
	if err != nil {
		return nil, errutil.Internal("failed to query tenant", err)
	}
	if t == nil {
		return nil, errutil.NotFound("tenant not found", nil)
	}

	plan, err := s.PlanByCode(ctx, req.PlanCode)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, errutil.UnprocessableEntity("plan is not available", nil)
	}

	amount := plan.PriceCents
	if req.AmountCents != nil {
		amount = *req.AmountCents
	}
	if amount < 0 {
		return nil, errutil.BadRequest("amount must not be negative", nil)
	}

	tx := &PaymentTransaction{
		ID:          s.node.GenerateID().String(),
		TenantID:    t.ID,
		TenantCode:  t.TenantCode,
		PlanCode:    plan.Code,
		AmountCents: amount,
		Currency:    plan.Currency,
		Method:      req.Method,
		Status:      PaymentPending,
		Reference:   req.Reference,
		Notes:       req.Notes,
	}
	if err := s.payments.Create(ctx, tx); err != nil {
		return nil, errutil.Internal("failed to record payment", err)
	}
	return tx, nil
}

// ConfirmPayment settles a pending transaction. Confirmed, failed and
// refunded transactions are immutable.
func (s *Service) ConfirmPayment(ctx context.Context, id string) (*PaymentTransaction, error) {
	tx, err := s.payments.FindOne(ctx, &PaymentTransaction{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to query payment", err)
	}
	if tx == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}
	if tx.Status != PaymentPending {
		return nil, errutil.UnprocessableEntity("payment is already settled", nil)
	}

	paidAt := s.now().UTC()
	tx.Status = PaymentConfirmed
	tx.PaidAt = &paidAt
	if err := s.payments.Update(ctx, tx); err != nil {
		return nil, errutil.Internal("failed to confirm payment", err)
	}
	return tx, nil
}

func (s *Service) PaymentsByTenant(ctx context.Context, tenantCode string, page pagination.Pagination) ([]*PaymentTransaction, error) {
	payments, err := s.payments.Find(ctx, &PaymentTransaction{TenantCode: tenantCode}, option.ApplyPagination(page))
	if err != nil {
		return nil, errutil.Internal("failed to list payments", err)
	}
	return payments, nil
}

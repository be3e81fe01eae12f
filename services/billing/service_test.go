package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
	"license-controlplane/services/license"
	"license-controlplane/services/tenant"
	"license-controlplane/services/testutil"
)

func newBillingEnv(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &SubscriptionPlan{}, &PaymentTransaction{}, &tenant.Tenant{})

	node, err := gen.NewSnowflakeNode()
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func seedTenant(t *testing.T, s *Service, code string) *tenant.Tenant {
	t.Helper()

	tn := &tenant.Tenant{
		ID:         s.node.GenerateID().String(),
		TenantCode: code,
		Name:       "Mercearia Boa Vista",
		Document:   code,
		Email:      code + "@example.com",
		Status:     tenant.StatusActive,
	}
	require.NoError(t, repository.ProvideStore[tenant.Tenant](s.db).Create(context.Background(), tn))
	return tn
}

func TestSeedPlansIsIdempotent(t *testing.T) {
	svc := newBillingEnv(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedPlans(ctx))
	require.NoError(t, svc.SeedPlans(ctx))

	plans, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 4)

	pro, err := svc.PlanByCode(ctx, string(license.PlanProfessional))
	require.NoError(t, err)
	require.Equal(t, int64(9990), pro.PriceCents)
	require.Equal(t, 10, pro.MaxUsers)
	require.JSONEq(t, `{"max_users":10,"max_customers":5000,"max_products":10000,"max_transactions":50000}`, string(pro.Limits))
}

func TestRecordPaymentDefaultsToCatalogPrice(t *testing.T) {
	svc := newBillingEnv(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedPlans(ctx))
	seedTenant(t, svc, "12345678000190")

	tx, err := svc.RecordPayment(ctx, "12345678000190", RecordPaymentRequest{
		PlanCode: string(license.PlanStarter),
		Method:   "pix",
	})
	require.NoError(t, err)
	require.Equal(t, PaymentPending, tx.Status)
	require.Equal(t, int64(4990), tx.AmountCents)
	require.Nil(t, tx.PaidAt)

	payments, err := svc.PaymentsByTenant(ctx, "12345678000190", pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestRecordPaymentRejectsUnknownTenantAndPlan(t *testing.T) {
	svc := newBillingEnv(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedPlans(ctx))

	_, err := svc.RecordPayment(ctx, "00000000000000", RecordPaymentRequest{PlanCode: "starter"})
	require.ErrorContains(t, err, "tenant not found")

	seedTenant(t, svc, "12345678000190")
	_, err = svc.RecordPayment(ctx, "12345678000190", RecordPaymentRequest{PlanCode: "platinum"})
	require.ErrorContains(t, err, "plan not found")
}

func TestConfirmPaymentSettlesOnce(t *testing.T) {
	svc := newBillingEnv(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedPlans(ctx))
	seedTenant(t, svc, "12345678000190")

	settledAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return settledAt }

	tx, err := svc.RecordPayment(ctx, "12345678000190", RecordPaymentRequest{PlanCode: "professional"})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaidAt)
	require.True(t, confirmed.PaidAt.Equal(settledAt))

	_, err = svc.ConfirmPayment(ctx, tx.ID)
	require.ErrorContains(t, err, "already settled")
}

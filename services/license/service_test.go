package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"license-controlplane/pkg/db/pagination"
	"license-controlplane/services/client"
)

var testMeta = RequestMeta{IP: "10.0.0.1", UserAgent: "pdv-desktop/2.1"}

func TestActivateAndHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))
	require.Equal(t, StatusPending, l.Status)

	res, err := env.svc.Activate(ctx, ActivateRequest{
		LicenseKey:   l.LicenseKey,
		HardwareID:   "HW-001",
		HardwareInfo: map[string]interface{}{"hostname": "caixa-01"},
	}, testMeta)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "active", res.Status)
	require.NotEmpty(t, res.Signature)

	beat, err := env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.True(t, beat.Valid)
	// heartbeat never re-signs
	require.Equal(t, res.Signature, beat.Signature)

	stored, err := env.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, "HW-001", stored.HardwareID)
	require.NotNil(t, stored.ActivatedAt)
	require.NotNil(t, stored.LastHeartbeatAt)
}

func TestActivateUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Activate(context.Background(), ActivateRequest{
		LicenseKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ",
		HardwareID: "HW-001",
	}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "error", res.Status)
	require.Equal(t, "License key not found", res.Message)
}

func TestHardwareBindingIsSticky(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))

	_, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)

	// another machine cannot activate
	res, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-002"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "another machine")

	// nor heartbeat
	res, err = env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-002"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "different hardware")

	// the bound machine may re-activate
	res, err = env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.True(t, res.Valid)

	// admin unbinds, then the new machine takes over
	_, err = env.svc.ClearHardware(ctx, l.ID)
	require.NoError(t, err)

	res, err = env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-002"}, testMeta)
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestExpiryIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(0, 0, 10))

	_, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)

	// move the clock past expiry
	env.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 11) }

	res, err := env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "expired", res.Status)

	// the transition is persisted, and further heartbeats never revive it
	stored, err := env.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)

	res, err = env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)

	// reactivation requires an extended expiry first
	_, err = env.svc.Reactivate(ctx, l.ID)
	require.Error(t, err)

	future := time.Now().AddDate(1, 0, 0)
	env.svc.now = time.Now
	_, err = env.svc.Update(ctx, l.ID, UpdateRequest{ExpiresAt: &future})
	require.NoError(t, err)

	reactivated, err := env.svc.Reactivate(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, reactivated.Status)
}

func TestRevokeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))

	_, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)

	revoked, err := env.svc.Revoke(ctx, l.ID, "chargeback")
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)

	res, err := env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "revoked")

	res, err = env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)

	// no path out of revoked
	_, err = env.svc.Reactivate(ctx, l.ID)
	require.Error(t, err)
	_, err = env.svc.Suspend(ctx, l.ID)
	require.Error(t, err)
	_, err = env.svc.Update(ctx, l.ID, UpdateRequest{})
	require.Error(t, err)
}

func TestSuspendAndReactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))

	_, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)

	_, err = env.svc.Suspend(ctx, l.ID)
	require.NoError(t, err)

	res, err := env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "suspended")

	_, err = env.svc.Reactivate(ctx, l.ID)
	require.NoError(t, err)

	res, err = env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestUpdateResignsActiveBoundLicense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))

	res, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)

	plan := PlanProfessional
	updated, err := env.svc.Update(ctx, l.ID, UpdateRequest{Plan: &plan})
	require.NoError(t, err)
	require.Equal(t, PlanProfessional, updated.Plan)
	require.NotEmpty(t, updated.Signature)

	// the new signature covers the new plan
	require.NoError(t, env.svc.signer.Verify(updated, env.client.Name, updated.Signature))

	// the pre-update signature no longer verifies
	require.Error(t, env.svc.signer.Verify(updated, env.client.Name, res.Signature))
}

func TestValidationAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.createLicense(t, PlanStarter, time.Now().AddDate(1, 0, 0))

	_, err := env.svc.Activate(ctx, ActivateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	_, err = env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-001"}, testMeta)
	require.NoError(t, err)
	_, err = env.svc.Validate(ctx, ValidateRequest{LicenseKey: l.LicenseKey, HardwareID: "HW-002"}, testMeta)
	require.NoError(t, err)

	rows, err := env.svc.Validations(ctx, l.ID, pagination.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var kinds []string
	var failures int
	for _, r := range rows {
		kinds = append(kinds, r.Type)
		if !r.Success {
			failures++
		}
	}
	require.Contains(t, kinds, "activation")
	require.Contains(t, kinds, "heartbeat")
	require.Equal(t, 1, failures)
}

func TestCreateRejectsInactiveClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	active := false
	_, err := env.clients.Update(ctx, env.client.ID, client.UpdateRequest{Active: &active})
	require.NoError(t, err)

	expires := time.Now().AddDate(1, 0, 0)
	_, err = env.svc.Create(ctx, CreateRequest{ClientID: env.client.ID, Plan: PlanStarter, ExpiresAt: &expires})
	require.Error(t, err)
}

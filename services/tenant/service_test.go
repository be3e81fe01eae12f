package tenant

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
	"license-controlplane/pkg/security"
	"license-controlplane/pkg/taskname"
	"license-controlplane/services/client"
	"license-controlplane/services/license"
	"license-controlplane/services/provisioning"
	"license-controlplane/services/testutil"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// fakeTenantConn serves the tenant-database user queries from memory.
type fakeTenantConn struct {
	user *provisioning.TenantUser
	exec []string
}

func (c *fakeTenantConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	c.exec = append(c.exec, query)
	if strings.Contains(query, "SET password_hash") && c.user != nil {
		c.user.PasswordHash = args[0].(string)
		c.user.MustChange = false
	}
	return nil
}

func (c *fakeTenantConn) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	return false, nil
}

func (c *fakeTenantConn) QueryInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	return 0, nil
}

func (c *fakeTenantConn) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	return nil, nil
}

func (c *fakeTenantConn) QueryRow(ctx context.Context, query string, dest []interface{}, args ...interface{}) (bool, error) {
	if c.user == nil {
		return false, nil
	}
	*dest[0].(*string) = c.user.ID
	*dest[1].(*string) = c.user.Email
	*dest[2].(*string) = c.user.PasswordHash
	*dest[3].(*string) = c.user.Name
	*dest[4].(*bool) = c.user.IsActive
	*dest[5].(*bool) = c.user.IsAdmin
	*dest[6].(*bool) = c.user.MustChange
	return true, nil
}

func (c *fakeTenantConn) Close() error { return nil }

type fakeTenantConnector struct {
	conn *fakeTenantConn
}

func (f *fakeTenantConnector) Admin(ctx context.Context) (provisioning.Conn, error) {
	return f.conn, nil
}

func (f *fakeTenantConnector) Tenant(ctx context.Context, database, user, password string) (provisioning.Conn, error) {
	return f.conn, nil
}

type tenantEnv struct {
	svc      *Service
	enqueuer *fakeEnqueuer
	conn     *fakeTenantConn
	licenses repository.Repository[license.License]
}

func newTenantEnv(t *testing.T) *tenantEnv {
	t.Helper()

	db := testutil.NewTestDB(t, &Tenant{}, &client.Client{}, &license.License{})

	node, err := gen.NewSnowflakeNode()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.MaxLoginAttempts = 5
	cfg.Auth.LoginLockoutWindow = 15 * time.Minute

	conn := &fakeTenantConn{}
	enqueuer := &fakeEnqueuer{}

	svc := NewService(ServiceParams{
		DB:          db,
		Config:      cfg,
		Provisioner: provisioning.NewProvisionerWithConnector(&fakeTenantConnector{conn: conn}, 0),
		Enqueuer:    enqueuer,
		Node:        node,
	})

	return &tenantEnv{
		svc:      svc,
		enqueuer: enqueuer,
		conn:     conn,
		licenses: repository.ProvideStore[license.License](db),
	}
}

func testRegisterRequest() RegisterRequest {
	return RegisterRequest{
		Name:     "Mercearia Boa Vista",
		Document: "12.345.678/0001-90",
		Email:    "dona@boavista.com",
		Phone:    "+55 11 99999-0000",
	}
}

func TestDerivations(t *testing.T) {
	require.Equal(t, "12345678000190", DeriveTenantCode("12.345.678/0001-90"))
	require.Equal(t, "cliente_12345678000190", DeriveDatabaseName("12.345.678/0001-90"))
	require.Equal(t, "user_12345678000190", DeriveDatabaseUser("12.345.678/0001-90"))
}

func TestRegisterTrial(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)
	require.Equal(t, "12345678000190", resp.TenantCode)
	require.Equal(t, "mercearia-boa-vista", resp.Subdomain)

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusProvisioning, stored.Status)
	require.True(t, stored.IsTrial)
	require.Equal(t, "cliente_12345678000190", stored.DatabaseName)
	require.NotEmpty(t, stored.DatabasePassword)
	require.True(t, security.VerifyPassword("12.345.678/0001-90", stored.InitialPasswordHash))

	// the issued license is a pending 30-day trial
	lic, err := env.licenses.FindOne(ctx, &license.License{ID: stored.LicenseID})
	require.NoError(t, err)
	require.NotNil(t, lic)
	require.Equal(t, license.PlanTrial, lic.Plan)
	require.Equal(t, license.StatusPending, lic.Status)
	require.NotNil(t, lic.ExpiresAt)

	var limits license.Limits
	require.NoError(t, json.Unmarshal(lic.Limits, &limits))
	require.Equal(t, 1, limits.MaxUsers)
	require.Equal(t, 50, limits.MaxCustomers)

	// provisioning goes through the queue
	require.Len(t, env.enqueuer.tasks, 1)
	task := env.enqueuer.tasks[0]
	require.Equal(t, taskname.TenantProvisionDatabase, task.Type())

	var payload provisioning.TenantProvisionPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "cliente_12345678000190", payload.DatabaseName)
	require.Equal(t, "dona@boavista.com", payload.AdminEmail)
}

func TestRegisterTrialRejectsDuplicates(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	_, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	_, err = env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	// same document under a different email is still a duplicate
	req := testRegisterRequest()
	req.Email = "other@boavista.com"
	_, err = env.svc.RegisterTrial(ctx, req)
	require.Error(t, err)
}

func TestStatusPoll(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	st, err := env.svc.Status(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusProvisioning, st.Status)
	require.False(t, st.Provisioned)

	_, err = env.svc.Status(ctx, "00000000000000")
	require.Error(t, err)
}

func TestMarkProvisionedActivatesTrialAndLicense(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusTrial, stored.Status)
	require.NotNil(t, stored.ProvisionedAt)

	lic, err := env.licenses.FindOne(ctx, &license.License{ID: stored.LicenseID})
	require.NoError(t, err)
	require.Equal(t, license.StatusActive, lic.Status)
	require.NotNil(t, lic.ActivatedAt)
}

func TestMarkProvisioningFailedRecordsDiagnostic(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	require.NoError(t, env.svc.markProvisioningFailed(ctx, resp.TenantCode, "create_database: connection refused"))

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusError, stored.Status)
	require.Contains(t, stored.Notes, "connection refused")

	st, err := env.svc.Status(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.NotEmpty(t, st.Message)

	// a successful retry recovers the tenant
	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))
	stored, err = env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusTrial, stored.Status)
	require.Empty(t, stored.Notes)
}

func TestLoginHappyPath(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)
	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))

	// the bootstrap user carries the legacy hash of the document
	env.conn.user = &provisioning.TenantUser{
		ID:           "1",
		Email:        "dona@boavista.com",
		Name:         "Dona Maria",
		PasswordHash: security.HashSHA256Hex("12.345.678/0001-90"),
		IsActive:     true,
		IsAdmin:      true,
		MustChange:   true,
	}

	out, err := env.svc.Login(ctx, "10.0.0.1", LoginRequest{
		Email:    "dona@boavista.com",
		Password: "12.345.678/0001-90",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, "bearer", out.TokenType)
	require.Equal(t, resp.TenantCode, out.TenantCode)
	require.True(t, out.RequiresPasswordChange)

	claims, err := env.svc.signer.Verify(out.AccessToken)
	require.NoError(t, err)
	require.Equal(t, resp.TenantCode, claims.TenantCode)
	require.Equal(t, "tenant", claims.Role)
}

func TestLoginRejectsWrongPasswordAndThrottles(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)
	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))

	env.conn.user = &provisioning.TenantUser{
		ID:           "1",
		Email:        "dona@boavista.com",
		PasswordHash: security.HashSHA256Hex("right"),
		IsActive:     true,
	}

	for i := 0; i < 5; i++ {
		_, err = env.svc.Login(ctx, "10.0.0.1", LoginRequest{Email: "dona@boavista.com", Password: "wrong"})
		require.Error(t, err)
	}

	// limit reached: even the right password is refused now
	_, err = env.svc.Login(ctx, "10.0.0.1", LoginRequest{Email: "dona@boavista.com", Password: "right"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "too many")
}

func TestLoginBlockedWhileProvisioning(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	_, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "10.0.0.1", LoginRequest{
		Email:    "dona@boavista.com",
		Password: "12.345.678/0001-90",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "provisioned")
}

func TestLoginExpiresTrial(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)
	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))

	env.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }

	_, err = env.svc.Login(ctx, "10.0.0.1", LoginRequest{
		Email:    "dona@boavista.com",
		Password: "12.345.678/0001-90",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "trial")

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusTrialExpired, stored.Status)
}

func TestChangePasswordMigratesToBcrypt(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)
	require.NoError(t, env.svc.markProvisioned(ctx, resp.TenantCode))

	env.conn.user = &provisioning.TenantUser{
		ID:           "1",
		Email:        "dona@boavista.com",
		PasswordHash: security.HashSHA256Hex("12.345.678/0001-90"),
		IsActive:     true,
		MustChange:   true,
	}

	err = env.svc.ChangePassword(ctx, ChangePasswordRequest{
		Email:       "dona@boavista.com",
		OldPassword: "12.345.678/0001-90",
		NewPassword: "a-much-better-one",
	})
	require.NoError(t, err)

	require.False(t, security.IsLegacyHash(env.conn.user.PasswordHash))
	require.True(t, security.VerifyPassword("a-much-better-one", env.conn.user.PasswordHash))
	require.False(t, env.conn.user.MustChange)

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.True(t, stored.PasswordChanged)

	err = env.svc.ChangePassword(ctx, ChangePasswordRequest{
		Email:       "dona@boavista.com",
		OldPassword: "wrong",
		NewPassword: "whatever-else",
	})
	require.Error(t, err)
}

func TestDeleteSchedulesDeprovision(t *testing.T) {
	env := newTenantEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RegisterTrial(ctx, testRegisterRequest())
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, resp.TenantCode))

	stored, err := env.svc.byCode(ctx, resp.TenantCode)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	require.Len(t, env.enqueuer.tasks, 2)
	require.Equal(t, taskname.TenantDeprovision, env.enqueuer.tasks[1].Type())
}

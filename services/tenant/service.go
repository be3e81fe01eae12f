package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
	"license-controlplane/pkg/security"
	"license-controlplane/pkg/task"
	"license-controlplane/services/client"
	"license-controlplane/services/license"
	"license-controlplane/services/provisioning"
)

const trialDays = 30

// trialLimits is what a self-service trial gets until someone pays.
var trialLimits = license.Limits{
	MaxUsers:        1,
	MaxCustomers:    50,
	MaxProducts:     100,
	MaxTransactions: 500,
}

var trialFeatures = []string{"basic_reports"}

type Service struct {
	db          *gorm.DB
	repo        repository.Repository[Tenant]
	clients     repository.Repository[client.Client]
	licenses    repository.Repository[license.License]
	provisioner *provisioning.Provisioner
	enqueuer    task.Enqueuer
	node        *gen.SnowflakeNode
	signer      *security.TokenSigner
	limiter     *security.LoginLimiter
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	DB          *gorm.DB
	Config      *config.Config
	Provisioner *provisioning.Provisioner
	Enqueuer    task.Enqueuer `optional:"true"`
	Node        *gen.SnowflakeNode
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		repo:        repository.ProvideStore[Tenant](p.DB),
		clients:     repository.ProvideStore[client.Client](p.DB),
		licenses:    repository.ProvideStore[license.License](p.DB),
		provisioner: p.Provisioner,
		enqueuer:    p.Enqueuer,
		node:        p.Node,
		signer:      security.NewTokenSigner(p.Config.Auth.Secret, p.Config.Auth.TokenTTL),
		limiter:     security.NewLoginLimiter(p.Config.Auth.MaxLoginAttempts, p.Config.Auth.LoginLockoutWindow),
		now:         time.Now,
	}
}

type RegisterRequest struct {
	Name      string `json:"name" binding:"required"`
	TradeName string `json:"trade_name"`
	Document  string `json:"document" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
}

type RegisterResponse struct {
	Message    string `json:"message"`
	TenantCode string `json:"tenant_code"`
	Subdomain  string `json:"subdomain"`
	AdminEmail string `json:"admin_email"`
	// the initial password is the registration document; the first login
	// forces a change
	PasswordHint string `json:"password_hint"`
}

// RegisterTrial self-provisions a 30-day trial: tenant + client + pending
// license in one transaction, then database provisioning off the request
// path.
func (s *Service) RegisterTrial(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("email", req.Email),
	)

	code := DeriveTenantCode(req.Document)
	if code == "" {
		return nil, errutil.BadRequest("document must contain digits", nil)
	}

	exist, err := s.repo.FindOne(ctx, &Tenant{Email: req.Email})
	if err != nil {
		return nil, errutil.Internal("failed to query tenants", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("a tenant with this email already exists", nil)
	}

	exist, err = s.repo.FindOne(ctx, &Tenant{Document: req.Document})
	if err != nil {
		return nil, errutil.Internal("failed to query tenants", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("a tenant with this document already exists", nil)
	}

	dbPassword, err := security.GenerateBase64Secret(16)
	if err != nil {
		return nil, errutil.Internal("failed to generate database credentials", err)
	}

	now := s.now()
	trialEnd := now.AddDate(0, 0, trialDays)

	featuresJSON, _ := json.Marshal(trialFeatures)
	limitsJSON, _ := json.Marshal(trialLimits)

	licenseKey, err := license.GenerateKey()
	if err != nil {
		return nil, errutil.Internal("failed to generate license key", err)
	}

	cl := &client.Client{
		ID:       s.node.GenerateID().String(),
		Name:     req.Name,
		Email:    req.Email,
		Document: req.Document,
		Phone:    req.Phone,
		Active:   true,
	}

	lic := &license.License{
		ID:         s.node.GenerateID().String(),
		LicenseKey: licenseKey,
		ClientID:   cl.ID,
		Plan:       license.PlanTrial,
		Features:   datatypes.JSON(featuresJSON),
		Limits:     datatypes.JSON(limitsJSON),
		MaxUsers:   trialLimits.MaxUsers,
		Status:     license.StatusPending,
		IssuedAt:   now,
		ExpiresAt:  &trialEnd,
	}

	t := &Tenant{
		ID:                  s.node.GenerateID().String(),
		TenantCode:          code,
		Name:                req.Name,
		TradeName:           req.TradeName,
		Document:            req.Document,
		Email:               req.Email,
		Phone:               req.Phone,
		DatabaseName:        DeriveDatabaseName(req.Document),
		DatabaseUser:        DeriveDatabaseUser(req.Document),
		DatabasePassword:    dbPassword,
		Subdomain:           slug.Make(req.Name),
		InitialPasswordHash: security.HashSHA256Hex(req.Document),
		ClientID:            cl.ID,
		LicenseID:           lic.ID,
		Status:              StatusProvisioning,
		IsTrial:             true,
		TrialDays:           trialDays,
		RegisteredAt:        now,
		TrialExpiresAt:      &trialEnd,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.clients.WithTrx(tx).Create(ctx, cl); err != nil {
			return err
		}
		if err := s.licenses.WithTrx(tx).Create(ctx, lic); err != nil {
			return err
		}
		return s.repo.WithTrx(tx).Create(ctx, t)
	}); err != nil {
		zapLog.Error("failed to register trial tenant", zap.Error(err))
		return nil, errutil.Internal("failed to register tenant", err)
	}

	if s.enqueuer != nil {
		_, err := s.enqueuer.Enqueue(ctx, provisioning.NewTenantProvisionTask(provisioning.TenantProvisionPayload{
			TenantCode:    t.TenantCode,
			DatabaseName:  t.DatabaseName,
			DatabaseUser:  t.DatabaseUser,
			DatabasePass:  t.DatabasePassword,
			AdminEmail:    t.Email,
			AdminPassword: t.Document,
			AdminName:     t.Name,
		}))
		if err != nil {
			zapLog.Error("failed to enqueue provisioning task", zap.Error(err))
			t.Status = StatusError
			t.Notes = "failed to enqueue provisioning: " + err.Error()
			_ = s.repo.Update(ctx, t)
			return nil, errutil.Internal("failed to schedule provisioning", err)
		}
	}

	zapLog.Info("trial registration accepted", zap.String("tenant_code", t.TenantCode))

	return &RegisterResponse{
		Message:      "Registration accepted, provisioning started",
		TenantCode:   t.TenantCode,
		Subdomain:    t.Subdomain,
		AdminEmail:   t.Email,
		PasswordHint: "use your registration document as the initial password",
	}, nil
}

type StatusResponse struct {
	TenantCode  string `json:"tenant_code"`
	Status      Status `json:"status"`
	Provisioned bool   `json:"provisioned"`
	Message     string `json:"message,omitempty"`
}

// Status is the registration poll endpoint.
func (s *Service) Status(ctx context.Context, code string) (*StatusResponse, error) {
	t, err := s.byCode(ctx, code)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		TenantCode:  t.TenantCode,
		Status:      t.Status,
		Provisioned: t.ProvisionedAt != nil,
	}
	if t.Status == StatusError {
		resp.Message = "provisioning failed, contact support"
	}
	return resp, nil
}

func (s *Service) byCode(ctx context.Context, code string) (*Tenant, error) {
	t, err := s.repo.FindOne(ctx, &Tenant{TenantCode: code})
	if err != nil {
		return nil, errutil.Internal("failed to query tenant", err)
	}
	if t == nil {
		return nil, errutil.NotFound("tenant not found", nil)
	}
	return t, nil
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken            string `json:"access_token"`
	TokenType              string `json:"token_type"`
	TenantCode             string `json:"tenant_code"`
	Subdomain              string `json:"subdomain"`
	Name                   string `json:"name"`
	RequiresPasswordChange bool   `json:"requires_password_change"`
}

// Login authenticates a tenant user against their own database. Both the
// bcrypt and the legacy SHA-256 schemes verify; ChangePassword migrates a
// legacy hash forward.
func (s *Service) Login(ctx context.Context, ip string, req LoginRequest) (*LoginResponse, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("email", req.Email),
	)

	if !s.limiter.Allow(ip, req.Email) {
		zapLog.Warn("tenant login throttled", zap.String("ip", ip))
		return nil, errutil.TooManyRequest("too many login attempts, try again later", nil)
	}

	t, err := s.repo.FindOne(ctx, &Tenant{Email: req.Email})
	if err != nil {
		return nil, errutil.Internal("failed to query tenant", err)
	}
	if t == nil {
		s.limiter.RecordFailure(ip, req.Email)
		return nil, errutil.Unauthorized("invalid email or password", nil)
	}

	if t.TrialExpired(s.now()) && t.Status == StatusTrial {
		t.Status = StatusTrialExpired
		if uerr := s.repo.Update(ctx, t); uerr != nil {
			zapLog.Warn("failed to persist trial expiry", zap.Error(uerr))
		}
	}

	if !t.Status.CanLogin() {
		s.limiter.RecordFailure(ip, req.Email)
		switch t.Status {
		case StatusTrialExpired:
			return nil, errutil.Forbidden("trial period has expired", nil)
		case StatusProvisioning, StatusPending:
			return nil, errutil.Forbidden("tenant is still being provisioned", nil)
		default:
			return nil, errutil.Forbidden("tenant account is not active", nil)
		}
	}

	user, err := s.provisioner.TenantUserByEmail(ctx, t.DatabaseName, t.DatabaseUser, t.DatabasePassword, req.Email)
	if err != nil {
		zapLog.Error("failed to reach tenant database", zap.Error(err))
		return nil, errutil.Internal("failed to verify credentials", err)
	}

	if user == nil || !user.IsActive || !security.VerifyPassword(req.Password, user.PasswordHash) {
		s.limiter.RecordFailure(ip, req.Email)
		zapLog.Warn("tenant login rejected")
		return nil, errutil.Unauthorized("invalid email or password", nil)
	}

	s.limiter.Reset(ip, req.Email)

	if err := s.provisioner.TouchTenantUserLogin(ctx, t.DatabaseName, t.DatabaseUser, t.DatabasePassword, req.Email); err != nil {
		zapLog.Warn("failed to record tenant login", zap.Error(err))
	}

	if t.ActivatedAt == nil {
		now := s.now()
		t.ActivatedAt = &now
		if err := s.repo.Update(ctx, t); err != nil {
			zapLog.Warn("failed to record tenant activation", zap.Error(err))
		}
	}

	token, err := s.signer.Sign(security.SessionClaims{
		Subject:    user.ID,
		TenantCode: t.TenantCode,
		Email:      user.Email,
		Role:       "tenant",
	})
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err)
	}

	return &LoginResponse{
		AccessToken:            token,
		TokenType:              "bearer",
		TenantCode:             t.TenantCode,
		Subdomain:              t.Subdomain,
		Name:                   user.Name,
		RequiresPasswordChange: user.MustChange,
	}, nil
}

type ChangePasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ChangePassword verifies the old password under either scheme and always
// writes the new one as bcrypt.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	t, err := s.repo.FindOne(ctx, &Tenant{Email: req.Email})
	if err != nil {
		return errutil.Internal("failed to query tenant", err)
	}
	if t == nil {
		return errutil.Unauthorized("invalid credentials", nil)
	}

	user, err := s.provisioner.TenantUserByEmail(ctx, t.DatabaseName, t.DatabaseUser, t.DatabasePassword, req.Email)
	if err != nil {
		return errutil.Internal("failed to verify credentials", err)
	}
	if user == nil || !security.VerifyPassword(req.OldPassword, user.PasswordHash) {
		return errutil.Unauthorized("invalid credentials", nil)
	}

	newHash, err := security.HashBcrypt(req.NewPassword)
	if err != nil {
		return errutil.Internal("failed to hash password", err)
	}

	if err := s.provisioner.SetTenantUserPassword(ctx, t.DatabaseName, t.DatabaseUser, t.DatabasePassword, req.Email, newHash); err != nil {
		return errutil.Internal("failed to update password", err)
	}

	if !t.PasswordChanged {
		t.PasswordChanged = true
		if err := s.repo.Update(ctx, t); err != nil {
			zap.L().Warn("failed to mark tenant password change", zap.Error(err))
		}
	}

	return nil
}

type InfoResponse struct {
	TenantCode     string     `json:"tenant_code"`
	Name           string     `json:"name"`
	Subdomain      string     `json:"subdomain"`
	Status         Status     `json:"status"`
	IsTrial        bool       `json:"is_trial"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}

func (s *Service) Info(ctx context.Context, code string) (*InfoResponse, error) {
	t, err := s.byCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return &InfoResponse{
		TenantCode:     t.TenantCode,
		Name:           t.Name,
		Subdomain:      t.Subdomain,
		Status:         t.Status,
		IsTrial:        t.IsTrial,
		TrialExpiresAt: t.TrialExpiresAt,
	}, nil
}

// Health connects to the tenant's database and reports its shape.
func (s *Service) Health(ctx context.Context, code string) (*provisioning.Health, error) {
	t, err := s.byCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.provisioner.CheckTenantDatabase(ctx, t.DatabaseName, t.DatabaseUser, t.DatabasePassword), nil
}

// Delete marks a tenant cancelled and schedules the database drop.
// Permanent.
func (s *Service) Delete(ctx context.Context, code string) error {
	t, err := s.byCode(ctx, code)
	if err != nil {
		return err
	}

	now := s.now()
	t.Status = StatusCancelled
	t.CancelledAt = &now
	if err := s.repo.Update(ctx, t); err != nil {
		return errutil.Internal("failed to cancel tenant", err)
	}

	if s.enqueuer != nil {
		if _, err := s.enqueuer.Enqueue(ctx, provisioning.NewTenantDeprovisionTask(provisioning.TenantDeprovisionPayload{
			TenantCode:   t.TenantCode,
			DatabaseName: t.DatabaseName,
			DatabaseUser: t.DatabaseUser,
		})); err != nil {
			return errutil.Internal("failed to schedule database removal", err)
		}
	}

	zap.L().Info("tenant cancelled", zap.String("tenant_code", t.TenantCode))
	return nil
}

// ActiveTenants lists tenants whose databases should be backed up.
func (s *Service) ActiveTenants(ctx context.Context) ([]*Tenant, error) {
	active, err := s.repo.Find(ctx, &Tenant{Status: StatusActive})
	if err != nil {
		return nil, err
	}
	trial, err := s.repo.Find(ctx, &Tenant{Status: StatusTrial})
	if err != nil {
		return nil, err
	}
	return append(active, trial...), nil
}

package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/repository"
	"license-controlplane/pkg/security"
)

type Service struct {
	db      *gorm.DB
	repo    repository.Repository[AdminUser]
	signer  *security.TokenSigner
	limiter *security.LoginLimiter
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		repo:    repository.ProvideStore[AdminUser](p.DB),
		signer:  security.NewTokenSigner(p.Config.Auth.Secret, p.Config.Auth.TokenTTL),
		limiter: security.NewLoginLimiter(p.Config.Auth.MaxLoginAttempts, p.Config.Auth.LoginLockoutWindow),
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	MustChange  bool   `json:"must_change_password"`
}

func (s *Service) Login(ctx context.Context, ip string, req LoginRequest) (*LoginResponse, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("email", req.Email),
	)

	if !s.limiter.Allow(ip, req.Email) {
		zapLog.Warn("admin login throttled", zap.String("ip", ip))
		return nil, errutil.TooManyRequest("too many login attempts, try again later", nil)
	}

	user, err := s.repo.FindOne(ctx, &AdminUser{Email: req.Email})
	if err != nil {
		return nil, errutil.Internal("failed to query admin user", err)
	}

	if user == nil || !user.Active || !security.VerifyPassword(req.Password, user.PasswordHash) {
		s.limiter.RecordFailure(ip, req.Email)
		zapLog.Warn("admin login rejected")
		return nil, errutil.Unauthorized("invalid email or password", nil)
	}

	s.limiter.Reset(ip, req.Email)

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.repo.Update(ctx, user); err != nil {
		zapLog.Warn("failed to record last login", zap.Error(err))
	}

	token, err := s.signer.Sign(security.SessionClaims{
		Subject: user.ID,
		Email:   user.Email,
		Role:    "admin",
	})
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err)
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Email:       user.Email,
		Name:        user.Name,
		MustChange:  user.MustChange,
	}, nil
}

// VerifyToken parses and validates an admin session token.
func (s *Service) VerifyToken(token string) (*security.SessionClaims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, errutil.Unauthorized("invalid or expired token", err)
	}
	if claims.Role != "admin" {
		return nil, errutil.Forbidden("admin access required", nil)
	}
	return claims, nil
}

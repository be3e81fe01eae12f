package license

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
	"license-controlplane/services/client"
)

const maxUserAgentLen = 500

// RequestMeta carries caller attribution into the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type Service struct {
	db          *gorm.DB
	licenses    repository.Repository[License]
	validations repository.Repository[Validation]
	clients     *client.Service
	signer      *SignatureEngine
	node        *gen.SnowflakeNode
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Clients *client.Service
	Signer  *SignatureEngine
	Node    *gen.SnowflakeNode
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		licenses:    repository.ProvideStore[License](p.DB),
		validations: repository.ProvideStore[Validation](p.DB),
		clients:     p.Clients,
		signer:      p.Signer,
		node:        p.Node,
		now:         time.Now,
	}
}

func (s *Service) audit(ctx context.Context, l *License, meta RequestMeta, kind, hardwareID string, success bool, errMsg string) {
	ua := meta.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}

	row := &Validation{
		ID:           s.node.GenerateID().String(),
		LicenseID:    l.ID,
		IP:           meta.IP,
		UserAgent:    ua,
		HardwareID:   hardwareID,
		Type:         kind,
		Success:      success,
		ErrorMessage: errMsg,
	}

	// the audit trail must never block the main flow
	if err := s.validations.Create(ctx, row); err != nil {
		zap.L().Warn("failed to write license audit row", zap.String("license_id", l.ID), zap.Error(err))
	}
}

type ActivateRequest struct {
	LicenseKey   string                 `json:"license_key" binding:"required"`
	HardwareID   string                 `json:"hardware_id" binding:"required"`
	HardwareInfo map[string]interface{} `json:"hardware_info"`
}

type ValidateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	HardwareID string `json:"hardware_id" binding:"required"`
}

// Result is the wire shape shared by activation and heartbeat responses.
type Result struct {
	Valid           bool            `json:"valid"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	Plan            string          `json:"plan,omitempty"`
	Features        json.RawMessage `json:"features,omitempty"`
	Limits          json.RawMessage `json:"limits,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	DaysUntilExpiry int             `json:"days_until_expiry,omitempty"`
	Signature       string          `json:"signature,omitempty"`
}

func (s *Service) successResult(l *License, message string) *Result {
	return &Result{
		Valid:           true,
		Status:          string(l.Status),
		Message:         message,
		Plan:            string(l.Plan),
		Features:        json.RawMessage(l.Features),
		Limits:          json.RawMessage(l.Limits),
		ExpiresAt:       l.ExpiresAt,
		DaysUntilExpiry: l.DaysUntilExpiry(s.now()),
		Signature:       l.Signature,
	}
}

// Activate binds a license to a machine. Re-activating from the same
// hardware id is allowed and refreshes the binding.
func (s *Service) Activate(ctx context.Context, req ActivateRequest, meta RequestMeta) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("license_key", req.LicenseKey),
		zap.String("hardware_id", req.HardwareID),
	)

	l, err := s.licenses.FindOne(ctx, &License{LicenseKey: req.LicenseKey})
	if err != nil {
		zapLog.Error("failed to query license", zap.Error(err))
		return nil, errutil.Internal("failed to query license", err)
	}
	if l == nil {
		// no license row, so no audit row either
		return &Result{Valid: false, Status: "error", Message: "License key not found"}, nil
	}

	now := s.now()

	if l.Status == StatusRevoked {
		s.audit(ctx, l, meta, "activation", req.HardwareID, false, "license revoked")
		return &Result{Valid: false, Status: string(StatusRevoked), Message: "License has been revoked. Contact support."}, nil
	}

	if l.HardwareID != "" && l.HardwareID != req.HardwareID {
		s.audit(ctx, l, meta, "activation", req.HardwareID, false, "hardware mismatch")
		return &Result{Valid: false, Status: string(l.Status), Message: "License already activated on another machine. Contact support."}, nil
	}

	if l.IsExpired(now) {
		if l.Status != StatusExpired {
			l.Status = StatusExpired
			if err := s.licenses.Update(ctx, l); err != nil {
				zapLog.Error("failed to persist expiry transition", zap.Error(err))
			}
		}
		s.audit(ctx, l, meta, "activation", req.HardwareID, false, "license expired")
		return &Result{Valid: false, Status: string(StatusExpired), Message: "License has expired. Contact support to renew."}, nil
	}

	cl, err := s.clients.Get(ctx, l.ClientID)
	if err != nil {
		zapLog.Error("failed to load license client", zap.Error(err))
		return nil, err
	}

	l.HardwareID = req.HardwareID
	if req.HardwareInfo != nil {
		info, merr := json.Marshal(req.HardwareInfo)
		if merr == nil {
			l.HardwareInfo = datatypes.JSON(info)
		}
	}
	l.ActivatedAt = &now
	l.LastValidatedAt = &now
	l.Status = StatusActive

	sig, err := s.signer.Sign(l, cl.Name)
	if err != nil {
		zapLog.Error("failed to sign license", zap.Error(err))
		return nil, err
	}
	l.Signature = sig

	if err := s.licenses.Update(ctx, l); err != nil {
		zapLog.Error("failed to persist activation", zap.Error(err))
		return nil, errutil.Internal("failed to persist activation", err)
	}

	s.audit(ctx, l, meta, "activation", req.HardwareID, true, "")
	zapLog.Info("license activated", zap.String("license_id", l.ID))

	return s.successResult(l, "License activated successfully"), nil
}

// Validate is the periodic heartbeat check from an activated installation.
// It never re-signs; the signature issued at activation stays stable.
func (s *Service) Validate(ctx context.Context, req ValidateRequest, meta RequestMeta) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("license_key", req.LicenseKey),
	)

	l, err := s.licenses.FindOne(ctx, &License{LicenseKey: req.LicenseKey})
	if err != nil {
		zapLog.Error("failed to query license", zap.Error(err))
		return nil, errutil.Internal("failed to query license", err)
	}
	if l == nil {
		return &Result{Valid: false, Status: "error", Message: "License key not found"}, nil
	}

	now := s.now()

	if l.HardwareID != "" && l.HardwareID != req.HardwareID {
		s.audit(ctx, l, meta, "heartbeat", req.HardwareID, false, "Hardware mismatch")
		return &Result{Valid: false, Status: string(l.Status), Message: "License is registered to different hardware. This may indicate unauthorized use."}, nil
	}

	switch l.Status {
	case StatusRevoked:
		s.audit(ctx, l, meta, "heartbeat", req.HardwareID, false, "license revoked")
		return &Result{Valid: false, Status: string(StatusRevoked), Message: "License has been revoked. Contact support."}, nil
	case StatusSuspended:
		s.audit(ctx, l, meta, "heartbeat", req.HardwareID, false, "license suspended")
		return &Result{Valid: false, Status: string(StatusSuspended), Message: "License is suspended. Contact support."}, nil
	}

	if l.IsExpired(now) {
		if l.Status != StatusExpired {
			l.Status = StatusExpired
			if err := s.licenses.Update(ctx, l); err != nil {
				zapLog.Error("failed to persist expiry transition", zap.Error(err))
			}
		}
		s.audit(ctx, l, meta, "heartbeat", req.HardwareID, false, "license expired")
		return &Result{Valid: false, Status: string(StatusExpired), Message: "License has expired. Contact support to renew."}, nil
	}

	if l.Status != StatusActive {
		s.audit(ctx, l, meta, "heartbeat", req.HardwareID, false, "license not active")
		return &Result{Valid: false, Status: string(l.Status), Message: "License is not active. Activate it first."}, nil
	}

	l.LastValidatedAt = &now
	l.LastHeartbeatAt = &now
	if err := s.licenses.Update(ctx, l); err != nil {
		zapLog.Error("failed to refresh heartbeat timestamps", zap.Error(err))
		return nil, errutil.Internal("failed to refresh heartbeat", err)
	}

	s.audit(ctx, l, meta, "heartbeat", req.HardwareID, true, "")

	return s.successResult(l, "License is valid"), nil
}

type CreateRequest struct {
	ClientID  string     `json:"client_id" binding:"required"`
	Plan      Plan       `json:"plan" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at" binding:"required"`
	MaxUsers  int        `json:"max_users"`
	Features  []string   `json:"features"`
	Notes     string     `json:"notes"`
}

// Create issues a new pending license. The client must exist and be active.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if _, err := s.clients.RequireActive(ctx, req.ClientID); err != nil {
		return nil, err
	}

	limits := DefaultLimits(req.Plan)
	if req.MaxUsers > 0 {
		limits.MaxUsers = req.MaxUsers
	}

	features := req.Features
	if features == nil {
		features = DefaultFeatures(req.Plan)
	}

	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, errutil.Internal("failed to encode features", err)
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return nil, errutil.Internal("failed to encode limits", err)
	}

	key, err := s.uniqueKey(ctx)
	if err != nil {
		return nil, err
	}

	l := &License{
		ID:         s.node.GenerateID().String(),
		LicenseKey: key,
		ClientID:   req.ClientID,
		Plan:       req.Plan,
		Features:   datatypes.JSON(featuresJSON),
		Limits:     datatypes.JSON(limitsJSON),
		MaxUsers:   limits.MaxUsers,
		Status:     StatusPending,
		IssuedAt:   s.now(),
		ExpiresAt:  req.ExpiresAt,
		Notes:      req.Notes,
	}

	if err := s.licenses.Create(ctx, l); err != nil {
		return nil, errutil.Internal("failed to create license", err)
	}

	zap.L().Info("license issued",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("license_id", l.ID),
		zap.String("client_id", l.ClientID),
		zap.String("plan", string(l.Plan)),
	)

	return l, nil
}

func (s *Service) uniqueKey(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		key, err := GenerateKey()
		if err != nil {
			return "", errutil.Internal("failed to generate license key", err)
		}
		exist, err := s.licenses.FindOne(ctx, &License{LicenseKey: key})
		if err != nil {
			return "", errutil.Internal("failed to check key uniqueness", err)
		}
		if exist == nil {
			return key, nil
		}
	}
	return "", errutil.Internal("could not generate a unique license key", nil)
}

func (s *Service) Get(ctx context.Context, id string) (*License, error) {
	l, err := s.licenses.FindOne(ctx, &License{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to query license", err)
	}
	if l == nil {
		return nil, errutil.NotFound("license not found", nil)
	}
	return l, nil
}

type ListFilter struct {
	ClientID string `form:"client_id"`
	Status   Status `form:"status"`
}

func (s *Service) List(ctx context.Context, filter ListFilter, page pagination.Pagination) ([]*License, error) {
	query := &License{ClientID: filter.ClientID, Status: filter.Status}
	out, err := s.licenses.Find(ctx, query, option.ApplyPagination(page))
	if err != nil {
		return nil, errutil.Internal("failed to list licenses", err)
	}
	return out, nil
}

// Revoke is terminal. A revoked license never validates and is never
// re-signed again.
func (s *Service) Revoke(ctx context.Context, id, reason string) (*License, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	l.Status = StatusRevoked
	l.RevokedAt = &now
	if reason != "" {
		l.Notes = reason
	}

	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, errutil.Internal("failed to revoke license", err)
	}

	zap.L().Info("license revoked", zap.String("license_id", l.ID), zap.String("reason", reason))
	return l, nil
}

func (s *Service) Suspend(ctx context.Context, id string) (*License, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if l.Status == StatusRevoked {
		return nil, errutil.UnprocessableEntity("revoked licenses cannot be suspended", nil)
	}

	l.Status = StatusSuspended
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, errutil.Internal("failed to suspend license", err)
	}

	zap.L().Info("license suspended", zap.String("license_id", l.ID))
	return l, nil
}

// Reactivate restores a suspended or expired license to active. An expired
// license must have its expiry extended first.
func (s *Service) Reactivate(ctx context.Context, id string) (*License, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch l.Status {
	case StatusSuspended, StatusExpired:
	default:
		return nil, errutil.UnprocessableEntity("only suspended or expired licenses can be reactivated", nil)
	}

	if l.IsExpired(s.now()) {
		return nil, errutil.UnprocessableEntity("license expiry date has passed, extend it before reactivating", nil)
	}

	l.Status = StatusActive
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, errutil.Internal("failed to reactivate license", err)
	}

	zap.L().Info("license reactivated", zap.String("license_id", l.ID))
	return l, nil
}

type UpdateRequest struct {
	Plan      *Plan      `json:"plan"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUsers  *int       `json:"max_users"`
	Features  []string   `json:"features"`
	Notes     *string    `json:"notes"`
}

// Update mutates plan, limits, expiry or notes. An active hardware-bound
// license is re-signed immediately so the installed copy stays verifiable.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*License, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if l.Status == StatusRevoked {
		return nil, errutil.UnprocessableEntity("revoked licenses cannot be updated", nil)
	}

	if req.Plan != nil {
		l.Plan = *req.Plan
		limits := DefaultLimits(*req.Plan)
		limitsJSON, merr := json.Marshal(limits)
		if merr != nil {
			return nil, errutil.Internal("failed to encode limits", merr)
		}
		l.Limits = datatypes.JSON(limitsJSON)
		l.MaxUsers = limits.MaxUsers
	}
	if req.ExpiresAt != nil {
		l.ExpiresAt = req.ExpiresAt
	}
	if req.MaxUsers != nil {
		l.MaxUsers = *req.MaxUsers
	}
	if req.Features != nil {
		featuresJSON, merr := json.Marshal(req.Features)
		if merr != nil {
			return nil, errutil.Internal("failed to encode features", merr)
		}
		l.Features = datatypes.JSON(featuresJSON)
	}
	if req.Notes != nil {
		l.Notes = *req.Notes
	}

	if l.Status == StatusActive && l.HardwareID != "" {
		cl, cerr := s.clients.Get(ctx, l.ClientID)
		if cerr != nil {
			return nil, cerr
		}
		sig, serr := s.signer.Sign(l, cl.Name)
		if serr != nil {
			return nil, serr
		}
		l.Signature = sig
	}

	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, errutil.Internal("failed to update license", err)
	}

	return l, nil
}

// ClearHardware unbinds a license from its machine so it can be activated
// elsewhere. The old signature is dropped with the binding.
func (s *Service) ClearHardware(ctx context.Context, id string) (*License, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if l.Status == StatusRevoked {
		return nil, errutil.UnprocessableEntity("revoked licenses cannot be reset", nil)
	}

	l.HardwareID = ""
	l.HardwareInfo = nil
	l.Signature = ""
	l.ActivatedAt = nil
	l.Status = StatusPending

	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, errutil.Internal("failed to clear hardware binding", err)
	}

	zap.L().Info("license hardware binding cleared", zap.String("license_id", l.ID))
	return l, nil
}

// DownloadFile builds the distributable signed license document.
func (s *Service) DownloadFile(ctx context.Context, id string) (*LicenseFile, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cl, err := s.clients.Get(ctx, l.ClientID)
	if err != nil {
		return nil, err
	}

	return s.signer.BuildLicenseFile(l, cl.Name)
}

// Validations returns the audit trail for a license, newest first.
func (s *Service) Validations(ctx context.Context, id string, page pagination.Pagination) ([]*Validation, error) {
	rows, err := s.validations.Find(ctx, &Validation{LicenseID: id},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(page),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list validations", err)
	}
	return rows, nil
}

package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"license-controlplane/pkg/taskname"
	"license-controlplane/services/license"
	"license-controlplane/services/provisioning"
)

// Worker consumes provisioning jobs. Provisioning is idempotent, so a
// retried job that half-completed before just finishes the missing steps.
type Worker struct {
	service *Service
}

func NewWorker(service *Service) *Worker {
	return &Worker{service: service}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.TenantProvisionDatabase, w.HandleProvision)
	mux.HandleFunc(taskname.TenantDeprovision, w.HandleDeprovision)
}

func (w *Worker) HandleProvision(ctx context.Context, t *asynq.Task) error {
	var payload provisioning.TenantProvisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// a malformed payload never becomes valid on retry
		return fmt.Errorf("unmarshal provision payload: %w: %s", asynq.SkipRetry, err)
	}

	zapLog := zap.L().With(
		zap.String("task", taskname.TenantProvisionDatabase),
		zap.String("tenant_code", payload.TenantCode),
	)
	zapLog.Info("provisioning tenant database", zap.String("database", payload.DatabaseName))

	ok, detail := w.service.provisioner.Provision(ctx, provisioning.ProvisionParams{
		TenantCode:    payload.TenantCode,
		DatabaseName:  payload.DatabaseName,
		DatabaseUser:  payload.DatabaseUser,
		DatabasePass:  payload.DatabasePass,
		AdminEmail:    payload.AdminEmail,
		AdminPassword: payload.AdminPassword,
		AdminName:     payload.AdminName,
	})

	if !ok {
		zapLog.Error("tenant provisioning failed", zap.String("detail", detail))
		if err := w.service.markProvisioningFailed(ctx, payload.TenantCode, detail); err != nil {
			zapLog.Error("failed to record provisioning failure", zap.Error(err))
		}
		return fmt.Errorf("provision tenant %s: %s", payload.TenantCode, detail)
	}

	if err := w.service.markProvisioned(ctx, payload.TenantCode); err != nil {
		zapLog.Error("failed to record provisioning success", zap.Error(err))
		return err
	}

	zapLog.Info("tenant database provisioned")
	return nil
}

func (w *Worker) HandleDeprovision(ctx context.Context, t *asynq.Task) error {
	var payload provisioning.TenantDeprovisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal deprovision payload: %w: %s", asynq.SkipRetry, err)
	}

	zapLog := zap.L().With(
		zap.String("task", taskname.TenantDeprovision),
		zap.String("tenant_code", payload.TenantCode),
	)
	zapLog.Info("dropping tenant database", zap.String("database", payload.DatabaseName))

	if err := w.service.provisioner.DeleteTenantDatabase(ctx, payload.DatabaseName, payload.DatabaseUser); err != nil {
		zapLog.Error("failed to drop tenant database", zap.Error(err))
		return err
	}

	zapLog.Info("tenant database dropped")
	return nil
}

// markProvisioned flips a freshly provisioned tenant into its usable state
// and activates the license that was issued at registration.
func (s *Service) markProvisioned(ctx context.Context, code string) error {
	t, err := s.repo.FindOne(ctx, &Tenant{TenantCode: code})
	if err != nil || t == nil {
		return fmt.Errorf("tenant %s not found after provisioning: %w", code, err)
	}

	now := s.now()
	if t.Status == StatusProvisioning || t.Status == StatusPending || t.Status == StatusError {
		if t.IsTrial {
			t.Status = StatusTrial
		} else {
			t.Status = StatusActive
		}
	}
	t.ProvisionedAt = &now
	t.Notes = ""
	if err := s.repo.Update(ctx, t); err != nil {
		return err
	}

	if t.LicenseID != "" {
		lic, err := s.licenses.FindOne(ctx, &license.License{ID: t.LicenseID})
		if err != nil {
			return err
		}
		if lic != nil && lic.Status == license.StatusPending {
			lic.Status = license.StatusActive
			lic.ActivatedAt = &now
			if err := s.licenses.Update(ctx, lic); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) markProvisioningFailed(ctx context.Context, code, detail string) error {
	t, err := s.repo.FindOne(ctx, &Tenant{TenantCode: code})
	if err != nil || t == nil {
		return fmt.Errorf("tenant %s not found: %w", code, err)
	}
	t.Status = StatusError
	if len(detail) > 500 {
		detail = detail[:500]
	}
	t.Notes = "provisioning failed at " + time.Now().UTC().Format(time.RFC3339) + ": " + detail
	return s.repo.Update(ctx, t)
}

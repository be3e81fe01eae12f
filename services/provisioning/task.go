package provisioning

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"license-controlplane/pkg/taskname"
)

type TenantProvisionPayload struct {
	TenantCode    string `json:"tenant_code"`
	DatabaseName  string `json:"database_name"`
	DatabaseUser  string `json:"database_user"`
	DatabasePass  string `json:"database_password"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
	AdminName     string `json:"admin_name"`
}

func NewTenantProvisionTask(p TenantProvisionPayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(taskname.TenantProvisionDatabase, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("provisioning"))
}

type TenantDeprovisionPayload struct {
	TenantCode   string `json:"tenant_code"`
	DatabaseName string `json:"database_name"`
	DatabaseUser string `json:"database_user"`
}

func NewTenantDeprovisionTask(p TenantDeprovisionPayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(taskname.TenantDeprovision, payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("provisioning"))
}

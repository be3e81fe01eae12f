package taskname

const (
	TenantProvisionDatabase = "tenant:provision:database"
	TenantDeprovision       = "tenant:deprovision"
)

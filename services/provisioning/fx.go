package provisioning

import "go.uber.org/fx"

var Module = fx.Module("provisioning.module",
	fx.Provide(NewProvisioner),
)

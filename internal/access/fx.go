package access

import (
	"go.uber.org/fx"

	"github.com/quarterfind/quarterfind/internal/access/service"
)

var Module = fx.Module("access.engine",
	fx.Provide(service.New),
)

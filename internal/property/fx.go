package property

import (
	"go.uber.org/fx"

	"github.com/quarterfind/quarterfind/internal/property/repository"
	"github.com/quarterfind/quarterfind/internal/property/service"
)

var Module = fx.Module("property.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

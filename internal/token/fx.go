package token

import (
	"go.uber.org/fx"

	"github.com/quarterfind/quarterfind/internal/token/repository"
	"github.com/quarterfind/quarterfind/internal/token/service"
)

var Module = fx.Module("token.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

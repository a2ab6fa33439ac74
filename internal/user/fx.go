package user

import (
	"go.uber.org/fx"

	"github.com/quarterfind/quarterfind/internal/user/repository"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
)

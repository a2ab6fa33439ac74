package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/quarterfind/quarterfind/internal/access"
	"github.com/quarterfind/quarterfind/internal/cache"
	"github.com/quarterfind/quarterfind/internal/clock"
	"github.com/quarterfind/quarterfind/internal/config"
	"github.com/quarterfind/quarterfind/internal/migration"
	"github.com/quarterfind/quarterfind/internal/observability/metrics"
	"github.com/quarterfind/quarterfind/internal/property"
	"github.com/quarterfind/quarterfind/internal/sweeper"
	"github.com/quarterfind/quarterfind/internal/token"
	"github.com/quarterfind/quarterfind/internal/user"
	"github.com/quarterfind/quarterfind/pkg/db"
	"github.com/quarterfind/quarterfind/pkg/log"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		metrics.Module,
		migration.Module,

		// Functional domains
		user.Module,
		token.Module,
		access.Module,
		property.Module,
		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

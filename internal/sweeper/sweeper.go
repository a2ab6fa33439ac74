package sweeper

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/quarterfind/quarterfind/internal/clock"
	"github.com/quarterfind/quarterfind/internal/observability/metrics"
	tokendomain "github.com/quarterfind/quarterfind/internal/token/domain"
)

// Sweeper flips is_expired on overdue token packages on an interval. It is a
// best-effort collaborator: the grant decision re-derives usability from
// expires_at and stays correct even when a sweep is late.
type Sweeper struct {
	log      *zap.Logger
	clock    clock.Clock
	tokenSvc tokendomain.Service
	metrics  *metrics.Metrics
	interval time.Duration
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	TokenSvc tokendomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
	Config   Config
}

type Config struct {
	Interval time.Duration
}

func New(p Params) *Sweeper {
	return &Sweeper{
		log:      p.Log.Named("token.sweeper"),
		clock:    p.Clock,
		tokenSvc: p.TokenSvc,
		metrics:  p.Metrics,
		interval: p.Config.Interval,
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) error {
	flipped, err := s.tokenSvc.ExpireDue(ctx)
	if err != nil {
		s.log.Warn("expiry sweep failed", zap.Error(err))
		return err
	}
	s.metrics.RecordSwept(ctx, flipped)
	return nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

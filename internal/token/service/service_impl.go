package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quarterfind/quarterfind/internal/cache"
	"github.com/quarterfind/quarterfind/internal/clock"
	"github.com/quarterfind/quarterfind/internal/token/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Unlocked cache.UnlockedSetCache
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	unlocked cache.UnlockedSetCache
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("token.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		unlocked: p.Unlocked,
	}
}

func (s *Service) AddPackage(ctx context.Context, req domain.AddPackageRequest) (domain.TokenPackage, error) {
	ownerID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return domain.TokenPackage{}, domain.ErrInvalidUser
	}
	if req.Quantity <= 0 {
		return domain.TokenPackage{}, domain.ErrInvalidQuantity
	}
	if req.DurationHours <= 0 {
		return domain.TokenPackage{}, domain.ErrInvalidDuration
	}

	now := s.clock.Now()
	pkg := domain.TokenPackage{
		ID:          s.genID.Generate(),
		OwnerID:     ownerID,
		Quantity:    req.Quantity,
		Used:        0,
		PurchasedAt: now,
		ExpiresAt:   now.Add(time.Duration(req.DurationHours) * time.Hour),
		IsExpired:   false,
	}

	if err := s.repo.Insert(ctx, s.db, &pkg); err != nil {
		return domain.TokenPackage{}, err
	}

	s.log.Info("token package added",
		zap.String("owner_id", ownerID.String()),
		zap.Int("quantity", req.Quantity),
		zap.Time("expires_at", pkg.ExpiresAt),
	)
	return pkg, nil
}

func (s *Service) ListUsable(ctx context.Context, userID string) ([]domain.TokenPackage, error) {
	ownerID, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListUsable(ctx, s.db, ownerID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	pkgs := make([]domain.TokenPackage, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		pkgs = append(pkgs, *item)
	}
	return pkgs, nil
}

func (s *Service) HasAccessTo(ctx context.Context, userID, propertyID string) (bool, error) {
	ownerID, err := snowflake.ParseString(userID)
	if err != nil {
		return false, domain.ErrInvalidUser
	}
	propID, err := snowflake.ParseString(propertyID)
	if err != nil {
		return false, domain.ErrInvalidProperty
	}

	return s.repo.HasAccess(ctx, s.db, ownerID, propID, s.clock.Now())
}

func (s *Service) UnlockedPropertyIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	ownerID, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	if cached, ok := s.unlocked.Get(ctx, userID); ok {
		return toSet(cached), nil
	}

	ids, err := s.repo.UnlockedPropertyIDs(ctx, s.db, ownerID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}
	s.unlocked.Set(ctx, userID, raw)

	return toSet(raw), nil
}

func (s *Service) PropertiesSummary(ctx context.Context, userID string) ([]domain.AccessSummary, error) {
	ownerID, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	pkgs, err := s.repo.ListByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	accesses, err := s.repo.ListAccesses(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}

	expiries := make(map[snowflake.ID]time.Time, len(pkgs))
	for _, pkg := range pkgs {
		expiries[pkg.ID] = pkg.ExpiresAt
	}

	now := s.clock.Now()
	summaries := make([]domain.AccessSummary, 0, len(accesses))
	for _, access := range accesses {
		expiresAt, ok := expiries[access.PackageID]
		if !ok {
			continue
		}
		hours := expiresAt.Sub(now).Hours()
		if hours < 0 {
			hours = 0
		}
		summaries = append(summaries, domain.AccessSummary{
			PropertyID:    access.PropertyID,
			PackageID:     access.PackageID,
			AccessedAt:    access.AccessedAt,
			ExpiresInHrs:  hours,
			AccessExpired: !expiresAt.After(now),
		})
	}
	return summaries, nil
}

func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	flipped, err := s.repo.MarkExpired(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		s.log.Info("expired token packages swept", zap.Int64("count", flipped))
	}
	return flipped, nil
}

func (s *Service) InvalidateUnlocked(userID string) {
	s.unlocked.Invalidate(context.Background(), userID)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

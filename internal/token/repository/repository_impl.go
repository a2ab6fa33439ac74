package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/quarterfind/quarterfind/internal/token/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pkg *domain.TokenPackage) error {
	return db.WithContext(ctx).Create(pkg).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TokenPackage, error) {
	var pkg domain.TokenPackage
	err := db.WithContext(ctx).First(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*domain.TokenPackage, error) {
	var pkgs []*domain.TokenPackage
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("purchased_at asc, id asc").
		Find(&pkgs).Error
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

func (r *repo) ListUsable(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, now time.Time) ([]*domain.TokenPackage, error) {
	var pkgs []*domain.TokenPackage
	err := db.WithContext(ctx).
		Where("owner_id = ? AND expires_at > ?", ownerID, now).
		Order("expires_at asc, id asc").
		Find(&pkgs).Error
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

func (r *repo) HasAccess(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID, now time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.PropertyAccess{}).
		Joins("JOIN token_packages ON token_packages.id = property_accesses.package_id").
		Where("property_accesses.owner_id = ? AND property_accesses.property_id = ? AND token_packages.expires_at > ?",
			ownerID, propertyID, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, access *domain.PropertyAccess, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE token_packages SET used = used + 1
		 WHERE id = ? AND used < quantity AND expires_at > ?`,
		access.PackageID,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPackageDrained
	}

	return db.WithContext(ctx).Create(access).Error
}

func (r *repo) ListAccesses(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*domain.PropertyAccess, error) {
	var accesses []*domain.PropertyAccess
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("accessed_at asc, id asc").
		Find(&accesses).Error
	if err != nil {
		return nil, err
	}
	return accesses, nil
}

func (r *repo) UnlockedPropertyIDs(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.PropertyAccess{}).
		Joins("JOIN token_packages ON token_packages.id = property_accesses.package_id").
		Where("property_accesses.owner_id = ? AND token_packages.expires_at > ?", ownerID, now).
		Pluck("property_accesses.property_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE token_packages SET is_expired = TRUE
		 WHERE expires_at <= ? AND is_expired = FALSE`,
		now,
	)
	return res.RowsAffected, res.Error
}

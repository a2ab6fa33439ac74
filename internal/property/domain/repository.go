package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/quarterfind/quarterfind/pkg/db/pagination"
)

type ListFilter struct {
	Type        PropertyType
	Status      *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, property *Property) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Property, error)
	Update(ctx context.Context, db *gorm.DB, property *Property) error
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Property, int64, error)
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status bool) error
	IncrementViewCount(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

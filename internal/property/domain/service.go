package domain

import (
	"context"
	"errors"
	"time"

	accessdomain "github.com/quarterfind/quarterfind/internal/access/domain"
	"github.com/quarterfind/quarterfind/pkg/db/pagination"
)

type PropertyFields struct {
	Title            string
	Description      string
	Type             PropertyType
	FloorLevel       int
	Size             string
	RentAmount       int64
	Currency         string
	PaymentFrequency string
	SecurityDeposit  int64
	Images           []string
	Videos           []string
	Location         Location
	Amenities        Amenities
	HouseRules       HouseRules
	Contact          Contact
	Status           bool
}

type CreatePropertyRequest struct {
	OwnerID string
	Fields  PropertyFields
}

type UpdatePropertyRequest struct {
	ID      string
	OwnerID string
	Fields  PropertyFields
}

type GetPropertyRequest struct {
	ID       string
	ViewerID string
}

type ListByOwnerRequest struct {
	OwnerID string
	Type    PropertyType
	Status  *bool
	From    *time.Time
	To      *time.Time
	Page    pagination.Pagination
}

type ListByOwnerResponse struct {
	pagination.PageInfo
	Properties []Summary `json:"properties"`
}

// UnlockResult pairs the access decision with the projected view. The view is
// public-shaped whenever the decision denied.
type UnlockResult struct {
	Decision accessdomain.Decision `json:"decision"`
	View     View                  `json:"view"`
}

type Service interface {
	// Create writes the property and appends its id to the owner's uploaded
	// list inside one transaction scope; both succeed or neither does.
	Create(ctx context.Context, req CreatePropertyRequest) (Property, error)

	// Update replaces the mutable fields. Only the owner may update.
	Update(ctx context.Context, req UpdatePropertyRequest) (Property, error)

	// Get returns the viewer-shaped property: full for owner or unlocked
	// viewers, gated fields absent otherwise. Get never consumes a unit.
	Get(ctx context.Context, req GetPropertyRequest) (View, error)

	// Unlock runs the paid access decision, debiting one unit when the
	// viewer has balance and no prior grant, then returns the decision and
	// the matching projection.
	Unlock(ctx context.Context, req GetPropertyRequest) (UnlockResult, error)

	ListByOwner(ctx context.Context, req ListByOwnerRequest) (ListByOwnerResponse, error)

	// AnnotateSearchPage flags each row with HasAccess from the viewer's
	// unlocked set, computed once per page rather than per row.
	AnnotateSearchPage(ctx context.Context, viewerID string, rows []Summary) ([]Summary, error)

	// Deactivate soft-hides a listing. Properties are never hard-deleted.
	Deactivate(ctx context.Context, id, ownerID string) error
}

var (
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrInvalidID     = errors.New("invalid_property_id")
	ErrInvalidTitle  = errors.New("invalid_title")
	ErrInvalidType   = errors.New("invalid_property_type")
	ErrInvalidRent   = errors.New("invalid_rent_amount")
	ErrNotFound      = errors.New("property_not_found")
	ErrOwnerNotFound = errors.New("owner_not_found")
	ErrNotOwner      = errors.New("not_property_owner")
)

// ValidTypes lists the accepted property kinds.
var ValidTypes = map[PropertyType]struct{}{
	TypeApartment: {},
	TypeHouse:     {},
	TypeStudio:    {},
	TypeOffice:    {},
	TypeShop:      {},
	TypeLand:      {},
	TypeDuplex:    {},
	TypeVilla:     {},
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository takes an explicit db handle on every call so the same code runs
// inside or outside a transaction scope.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *TokenPackage) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TokenPackage, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*TokenPackage, error)

	// ListUsable returns the owner's packages with expires_at > now, ordered
	// ascending (expires_at, id) so the soonest-to-expire package funds new
	// debits first. The ordering is the deterministic selection rule; callers
	// must not rely on store-returned order anywhere else.
	ListUsable(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, now time.Time) ([]*TokenPackage, error)

	// HasAccess reports whether any non-expired package of the owner has
	// already unlocked the property. Exhausted packages still count as long
	// as they have not expired.
	HasAccess(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID, now time.Time) (bool, error)

	// Debit consumes one unit from the package and appends the access record.
	// The update is guarded (used < quantity, expires_at > now); when the
	// guard rejects, ErrPackageDrained is returned so the caller can refresh
	// and retry. The insert surfaces the store's duplicate-key error when the
	// pair is already unlocked.
	Debit(ctx context.Context, db *gorm.DB, access *PropertyAccess, now time.Time) error

	ListAccesses(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*PropertyAccess, error)

	// UnlockedPropertyIDs returns the ids unlocked by the owner's non-expired
	// packages, for the bulk search overlay.
	UnlockedPropertyIDs(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, now time.Time) ([]snowflake.ID, error)

	// MarkExpired flips is_expired on packages whose expires_at has passed.
	// The transition is monotonic: only false -> true.
	MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}

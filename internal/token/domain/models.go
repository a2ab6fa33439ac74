package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TokenPackage is a purchased bundle of access units with an expiry. Packages
// are never deleted; a best-effort sweep flips IsExpired once ExpiresAt has
// passed, but usability is always re-derived from ExpiresAt so a stale flag
// can never grant access.
type TokenPackage struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Quantity    int          `gorm:"not null" json:"quantity"`
	Used        int          `gorm:"not null;default:0" json:"used"`
	PurchasedAt time.Time    `gorm:"not null" json:"purchased_at"`
	ExpiresAt   time.Time    `gorm:"not null;index" json:"expires_at"`
	IsExpired   bool         `gorm:"not null;default:false" json:"is_expired"`
}

// TableName sets the database table name.
func (TokenPackage) TableName() string { return "token_packages" }

// Remaining returns the unconsumed unit count. Invariant: 0 <= Used <= Quantity.
func (p *TokenPackage) Remaining() int {
	return p.Quantity - p.Used
}

// UsableAt reports whether the package can fund a new debit at the given
// instant. The IsExpired flag is deliberately ignored here.
func (p *TokenPackage) UsableAt(now time.Time) bool {
	return p.ExpiresAt.After(now) && p.Remaining() > 0
}

// PropertyAccess records one unlocked property. The unique index on
// (owner_id, property_id) is the store-level defense against double-spend:
// two concurrent debits for the same pair cannot both commit.
type PropertyAccess struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	PackageID  snowflake.ID `gorm:"not null;index" json:"package_id"`
	OwnerID    snowflake.ID `gorm:"not null;uniqueIndex:ux_property_accesses_owner_property,priority:1" json:"owner_id"`
	PropertyID snowflake.ID `gorm:"not null;uniqueIndex:ux_property_accesses_owner_property,priority:2" json:"property_id"`
	AccessedAt time.Time    `gorm:"not null" json:"accessed_at"`
}

// TableName sets the database table name.
func (PropertyAccess) TableName() string { return "property_accesses" }

// AccessSummary is the per-unlock row shown on "my unlocked properties"
// screens.
type AccessSummary struct {
	PropertyID    snowflake.ID `json:"property_id"`
	PackageID     snowflake.ID `json:"package_id"`
	AccessedAt    time.Time    `json:"accessed_at"`
	ExpiresInHrs  float64      `json:"expires_in_hours"`
	AccessExpired bool         `json:"access_expired"`
}

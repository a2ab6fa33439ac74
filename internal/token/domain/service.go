package domain

import (
	"context"
	"errors"
)

type AddPackageRequest struct {
	UserID        string
	Quantity      int
	DurationHours int
}

type Service interface {
	// AddPackage records a purchased package. The payment gateway is an
	// external collaborator; it calls this only after reporting success.
	AddPackage(ctx context.Context, req AddPackageRequest) (TokenPackage, error)

	ListUsable(ctx context.Context, userID string) ([]TokenPackage, error)

	// HasAccessTo reports whether the user already unlocked the property.
	// Absence is a normal outcome, never an error.
	HasAccessTo(ctx context.Context, userID, propertyID string) (bool, error)

	// UnlockedPropertyIDs returns the user's unlocked id set, computed once
	// per request and served from a short-lived cache.
	UnlockedPropertyIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	PropertiesSummary(ctx context.Context, userID string) ([]AccessSummary, error)

	// ExpireDue flips the is_expired flag on overdue packages. Best effort;
	// the grant path never trusts the flag.
	ExpireDue(ctx context.Context) (int64, error)

	// InvalidateUnlocked drops the cached unlocked set after a debit.
	InvalidateUnlocked(userID string)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidProperty = errors.New("invalid_property")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidDuration = errors.New("invalid_duration")

	// ErrPackageDrained signals that the chosen package lost its last unit to
	// a concurrent debit between selection and update.
	ErrPackageDrained = errors.New("package_drained")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Reason explains a decision. Denials must never conflate "pay to unlock"
// (no_balance) with "try again" (transient_conflict).
type Reason string

const (
	ReasonOwner             Reason = "owner"
	ReasonAlreadyUnlocked   Reason = "already_unlocked"
	ReasonDebited           Reason = "debited"
	ReasonNoBalance         Reason = "no_balance"
	ReasonTransientConflict Reason = "transient_conflict"
)

// Decision is the ephemeral result of one access check; it is never
// persisted.
type Decision struct {
	Granted           bool         `json:"granted"`
	Reason            Reason       `json:"reason"`
	ConsumedPackageID snowflake.ID `json:"consumed_package_id,omitempty"` // set only when Reason is debited
}

type DecideRequest struct {
	UserID     string
	PropertyID string
}

type Service interface {
	// Decide runs the grant ladder for one (user, property) pair: owner
	// bypass, then already-unlocked re-serve, then a paid debit against the
	// soonest-to-expire usable package. A detected write conflict is retried
	// exactly once before surfacing a transient deny.
	Decide(ctx context.Context, req DecideRequest) (Decision, error)
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrNotFound         = errors.New("property_not_found")
)

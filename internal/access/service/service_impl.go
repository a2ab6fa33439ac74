package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accessdomain "github.com/quarterfind/quarterfind/internal/access/domain"
	"github.com/quarterfind/quarterfind/internal/clock"
	"github.com/quarterfind/quarterfind/internal/observability/metrics"
	propertydomain "github.com/quarterfind/quarterfind/internal/property/domain"
	tokendomain "github.com/quarterfind/quarterfind/internal/token/domain"
	dbpkg "github.com/quarterfind/quarterfind/pkg/db"
	"github.com/quarterfind/quarterfind/pkg/db/txn"
)

// maxDebitAttempts bounds the selection+debit sequence: one initial attempt
// plus one retry against refreshed state. Never retry indefinitely.
const maxDebitAttempts = 2

// Sentinels used inside the debit transaction to carry the outcome out of the
// scope without committing anything.
var (
	errAlreadyUnlocked = errors.New("already_unlocked_inside_txn")
	errNoBalance       = errors.New("no_balance_inside_txn")
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	TokenRepo    tokendomain.Repository
	TokenSvc     tokendomain.Service
	PropertyRepo propertydomain.Repository
	Metrics      *metrics.Metrics `optional:"true"`
}

type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	tokens     tokendomain.Repository
	tokenSvc   tokendomain.Service
	properties propertydomain.Repository
	metrics    *metrics.Metrics
}

func New(p Params) accessdomain.Service {
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("access.engine"),
		genID:      p.GenID,
		clock:      p.Clock,
		tokens:     p.TokenRepo,
		tokenSvc:   p.TokenSvc,
		properties: p.PropertyRepo,
		metrics:    p.Metrics,
	}
}

func (e *Engine) Decide(ctx context.Context, req accessdomain.DecideRequest) (accessdomain.Decision, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return accessdomain.Decision{}, accessdomain.ErrInvalidReference
	}
	propertyID, err := snowflake.ParseString(req.PropertyID)
	if err != nil {
		return accessdomain.Decision{}, accessdomain.ErrInvalidReference
	}

	property, err := e.properties.FindByID(ctx, e.db, propertyID)
	if err != nil {
		return accessdomain.Decision{}, err
	}
	if property == nil {
		return accessdomain.Decision{}, accessdomain.ErrNotFound
	}

	if property.OwnerID == userID {
		return e.grant(ctx, accessdomain.Decision{Granted: true, Reason: accessdomain.ReasonOwner}), nil
	}

	// A previously granted property never costs a second unit, even when the
	// package that paid for it is exhausted.
	unlocked, err := e.tokens.HasAccess(ctx, e.db, userID, propertyID, e.clock.Now())
	if err != nil {
		return accessdomain.Decision{}, err
	}
	if unlocked {
		return e.grant(ctx, accessdomain.Decision{Granted: true, Reason: accessdomain.ReasonAlreadyUnlocked}), nil
	}

	for attempt := 0; attempt < maxDebitAttempts; attempt++ {
		decision, err := e.debit(ctx, userID, propertyID)
		switch {
		case err == nil:
			return e.grant(ctx, decision), nil
		case errors.Is(err, errAlreadyUnlocked) || dbpkg.IsDuplicateKeyErr(err):
			// Lost the race to a concurrent request for the same pair; that
			// request paid, this one re-serves for free.
			return e.grant(ctx, accessdomain.Decision{Granted: true, Reason: accessdomain.ReasonAlreadyUnlocked}), nil
		case errors.Is(err, errNoBalance):
			return e.deny(ctx, accessdomain.ReasonNoBalance), nil
		case errors.Is(err, tokendomain.ErrPackageDrained) || dbpkg.IsSerializationErr(err):
			e.metrics.RecordDebitConflict(ctx)
			e.log.Debug("debit conflict, retrying",
				zap.String("user_id", userID.String()),
				zap.String("property_id", propertyID.String()),
				zap.Int("attempt", attempt+1),
			)
		case txn.IsInfrastructure(err):
			e.log.Error("debit transaction failed",
				zap.String("user_id", userID.String()),
				zap.String("property_id", propertyID.String()),
				zap.Error(err),
			)
			return accessdomain.Decision{}, err
		default:
			return accessdomain.Decision{}, err
		}
	}

	return e.deny(ctx, accessdomain.ReasonTransientConflict), nil
}

// debit consumes one unit inside a single transaction scope: re-check the
// already-unlocked condition, pick the soonest-to-expire usable package,
// increment used and append the access record. Everything commits or nothing
// does.
func (e *Engine) debit(ctx context.Context, userID, propertyID snowflake.ID) (accessdomain.Decision, error) {
	now := e.clock.Now()
	var consumed snowflake.ID

	err := txn.Run(ctx, e.db, func(tx *gorm.DB) error {
		unlocked, err := e.tokens.HasAccess(ctx, tx, userID, propertyID, now)
		if err != nil {
			return err
		}
		if unlocked {
			return errAlreadyUnlocked
		}

		pkgs, err := e.tokens.ListUsable(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		var chosen *tokendomain.TokenPackage
		for _, pkg := range pkgs {
			if pkg.UsableAt(now) {
				chosen = pkg
				break
			}
		}
		if chosen == nil {
			return errNoBalance
		}
		consumed = chosen.ID

		return e.tokens.Debit(ctx, tx, &tokendomain.PropertyAccess{
			ID:         e.genID.Generate(),
			PackageID:  chosen.ID,
			OwnerID:    userID,
			PropertyID: propertyID,
			AccessedAt: now,
		}, now)
	})
	if err != nil {
		return accessdomain.Decision{}, err
	}

	e.tokenSvc.InvalidateUnlocked(userID.String())
	e.log.Info("access debited",
		zap.String("user_id", userID.String()),
		zap.String("property_id", propertyID.String()),
		zap.String("package_id", consumed.String()),
	)

	return accessdomain.Decision{
		Granted:           true,
		Reason:            accessdomain.ReasonDebited,
		ConsumedPackageID: consumed,
	}, nil
}

func (e *Engine) grant(ctx context.Context, decision accessdomain.Decision) accessdomain.Decision {
	e.metrics.RecordGrant(ctx, string(decision.Reason))
	return decision
}

func (e *Engine) deny(ctx context.Context, reason accessdomain.Reason) accessdomain.Decision {
	e.metrics.RecordDeny(ctx, string(reason))
	return accessdomain.Decision{Granted: false, Reason: reason}
}

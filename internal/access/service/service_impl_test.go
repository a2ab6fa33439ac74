package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	accessdomain "github.com/quarterfind/quarterfind/internal/access/domain"
	"github.com/quarterfind/quarterfind/internal/cache"
	"github.com/quarterfind/quarterfind/internal/clock"
	propertydomain "github.com/quarterfind/quarterfind/internal/property/domain"
	propertyrepository "github.com/quarterfind/quarterfind/internal/property/repository"
	tokendomain "github.com/quarterfind/quarterfind/internal/token/domain"
	tokenrepository "github.com/quarterfind/quarterfind/internal/token/repository"
	tokenservice "github.com/quarterfind/quarterfind/internal/token/service"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T, node *snowflake.Node, clk clock.Clock) (accessdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	err = db.AutoMigrate(
		&tokendomain.TokenPackage{},
		&tokendomain.PropertyAccess{},
		&propertydomain.Property{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tokenRepo := tokenrepository.Provide()
	tokenSvc := tokenservice.New(tokenservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     tokenRepo,
		Unlocked: cache.NewMemoryUnlockedCache(time.Minute),
	})

	engine := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		TokenRepo:    tokenRepo,
		TokenSvc:     tokenSvc,
		PropertyRepo: propertyrepository.Provide(),
	})
	return engine, db
}

func seedProperty(t *testing.T, db *gorm.DB, node *snowflake.Node, ownerID snowflake.ID) propertydomain.Property {
	t.Helper()
	property := propertydomain.Property{
		ID:               node.Generate(),
		OwnerID:          ownerID,
		Slug:             "two-bedroom-bonamoussadi",
		Title:            "Two bedroom apartment",
		Description:      "Spacious, close to the market.",
		Type:             propertydomain.TypeApartment,
		RentAmount:       75000,
		Currency:         "XAF",
		PaymentFrequency: "monthly",
		Status:           true,
		CreatedAt:        baseTime,
		UpdatedAt:        baseTime,
	}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	return property
}

func seedPackage(t *testing.T, db *gorm.DB, node *snowflake.Node, ownerID snowflake.ID, quantity, used int, expiresAt time.Time) tokendomain.TokenPackage {
	t.Helper()
	pkg := tokendomain.TokenPackage{
		ID:          node.Generate(),
		OwnerID:     ownerID,
		Quantity:    quantity,
		Used:        used,
		PurchasedAt: baseTime,
		ExpiresAt:   expiresAt,
	}
	if err := db.Create(&pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return pkg
}

func packageUsed(t *testing.T, db *gorm.DB, id snowflake.ID) int {
	t.Helper()
	var used int
	if err := db.Raw(`SELECT used FROM token_packages WHERE id = ?`, id).Scan(&used).Error; err != nil {
		t.Fatalf("read used: %v", err)
	}
	return used
}

func countAccesses(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM property_accesses`).Scan(&count).Error; err != nil {
		t.Fatalf("count accesses: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestDecideOwnerNeverPays(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	ownerID := node.Generate()
	property := seedProperty(t, db, node, ownerID)

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     ownerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.Granted || decision.Reason != accessdomain.ReasonOwner {
		t.Fatalf("expected owner grant, got %+v", decision)
	}
	if count := countAccesses(t, db); count != 0 {
		t.Fatalf("owner grant must not write access records, found %d", count)
	}
}

func TestDecideDebitsSoonestExpiringPackage(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())

	// Inserted in reverse expiry order on purpose.
	later := seedPackage(t, db, node, viewerID, 5, 0, baseTime.Add(72*time.Hour))
	sooner := seedPackage(t, db, node, viewerID, 5, 0, baseTime.Add(24*time.Hour))

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.Granted || decision.Reason != accessdomain.ReasonDebited {
		t.Fatalf("expected debited grant, got %+v", decision)
	}
	if decision.ConsumedPackageID != sooner.ID {
		t.Fatalf("expected soonest-expiring package %s, consumed %s", sooner.ID, decision.ConsumedPackageID)
	}
	if used := packageUsed(t, db, sooner.ID); used != 1 {
		t.Fatalf("expected sooner package used=1, got %d", used)
	}
	if used := packageUsed(t, db, later.ID); used != 0 {
		t.Fatalf("later package must be untouched, used=%d", used)
	}
}

func TestDecideConsumesLastUnit(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	first := seedProperty(t, db, node, node.Generate())
	second := seedProperty(t, db, node, node.Generate())
	pkg := seedPackage(t, db, node, viewerID, 3, 2, baseTime.Add(24*time.Hour))

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: first.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide first: %v", err)
	}
	if !decision.Granted || decision.Reason != accessdomain.ReasonDebited {
		t.Fatalf("expected debited grant, got %+v", decision)
	}
	if used := packageUsed(t, db, pkg.ID); used != 3 {
		t.Fatalf("expected used=3, got %d", used)
	}

	// The package is drained now; a different property must be denied.
	decision, err = engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: second.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide second: %v", err)
	}
	if decision.Granted || decision.Reason != accessdomain.ReasonNoBalance {
		t.Fatalf("expected no_balance deny, got %+v", decision)
	}
}

func TestDecideReaccessIsFree(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())
	pkg := seedPackage(t, db, node, viewerID, 1, 0, baseTime.Add(24*time.Hour))

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide first: %v", err)
	}
	if decision.Reason != accessdomain.ReasonDebited {
		t.Fatalf("expected debited grant, got %+v", decision)
	}

	// Re-access stays free even though the package is now fully drained.
	decision, err = engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide second: %v", err)
	}
	if !decision.Granted || decision.Reason != accessdomain.ReasonAlreadyUnlocked {
		t.Fatalf("expected already_unlocked grant, got %+v", decision)
	}
	if used := packageUsed(t, db, pkg.ID); used != 1 {
		t.Fatalf("re-access must not debit again, used=%d", used)
	}
	if count := countAccesses(t, db); count != 1 {
		t.Fatalf("expected single access record, got %d", count)
	}
}

func TestDecideNoBalanceWithoutPackages(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Granted || decision.Reason != accessdomain.ReasonNoBalance {
		t.Fatalf("expected no_balance deny, got %+v", decision)
	}
}

func TestDecideExpiredPackageWithStaleFlagDenied(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())

	// Expiry passed but the sweep has not flipped is_expired yet. The stale
	// flag must not matter: usability derives from expires_at.
	pkg := seedPackage(t, db, node, viewerID, 5, 0, baseTime.Add(-time.Minute))

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Granted || decision.Reason != accessdomain.ReasonNoBalance {
		t.Fatalf("expected no_balance deny, got %+v", decision)
	}
	if used := packageUsed(t, db, pkg.ID); used != 0 {
		t.Fatalf("expired package must not be debited, used=%d", used)
	}
}

func TestDecideIgnoresPrematureExpiredFlag(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())

	pkg := seedPackage(t, db, node, viewerID, 5, 0, baseTime.Add(24*time.Hour))
	if err := db.Exec(`UPDATE token_packages SET is_expired = TRUE WHERE id = ?`, pkg.ID).Error; err != nil {
		t.Fatalf("flip flag: %v", err)
	}

	decision, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     viewerID.String(),
		PropertyID: property.ID.String(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.Granted || decision.Reason != accessdomain.ReasonDebited {
		t.Fatalf("unexpired package must still fund a debit, got %+v", decision)
	}
}

func TestDecidePropertyNotFound(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, _ := setupEngine(t, node, clk)

	_, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     node.Generate().String(),
		PropertyID: node.Generate().String(),
	})
	if !errors.Is(err, accessdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideMalformedReference(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, _ := setupEngine(t, node, clk)

	_, err := engine.Decide(context.Background(), accessdomain.DecideRequest{
		UserID:     "not-an-id",
		PropertyID: node.Generate().String(),
	})
	if !errors.Is(err, accessdomain.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestDecideConcurrentSamePairDebitsOnce(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	property := seedProperty(t, db, node, node.Generate())
	pkg := seedPackage(t, db, node, viewerID, 5, 0, baseTime.Add(24*time.Hour))

	const workers = 8
	var wg sync.WaitGroup
	decisions := make([]accessdomain.Decision, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = engine.Decide(context.Background(), accessdomain.DecideRequest{
				UserID:     viewerID.String(),
				PropertyID: property.ID.String(),
			})
		}(i)
	}
	wg.Wait()

	debited := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !decisions[i].Granted {
			t.Fatalf("worker %d denied: %+v", i, decisions[i])
		}
		if decisions[i].Reason == accessdomain.ReasonDebited {
			debited++
		}
	}

	if debited != 1 {
		t.Fatalf("expected exactly one paid grant, got %d", debited)
	}
	if used := packageUsed(t, db, pkg.ID); used != 1 {
		t.Fatalf("expected used=1 after concurrent access, got %d", used)
	}
	if count := countAccesses(t, db); count != 1 {
		t.Fatalf("expected one access record, got %d", count)
	}
}

func TestDecideConcurrentDistinctPropertiesNeverOverspend(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(baseTime)
	engine, db := setupEngine(t, node, clk)

	viewerID := node.Generate()
	first := seedProperty(t, db, node, node.Generate())
	second := seedProperty(t, db, node, node.Generate())
	pkg := seedPackage(t, db, node, viewerID, 1, 0, baseTime.Add(24*time.Hour))

	targets := []snowflake.ID{first.ID, second.ID}
	var wg sync.WaitGroup
	decisions := make([]accessdomain.Decision, len(targets))
	errs := make([]error, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target snowflake.ID) {
			defer wg.Done()
			decisions[i], errs[i] = engine.Decide(context.Background(), accessdomain.DecideRequest{
				UserID:     viewerID.String(),
				PropertyID: target.String(),
			})
		}(i, target)
	}
	wg.Wait()

	granted := 0
	for i := range targets {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if decisions[i].Granted {
			granted++
			continue
		}
		if decisions[i].Reason != accessdomain.ReasonNoBalance &&
			decisions[i].Reason != accessdomain.ReasonTransientConflict {
			t.Fatalf("unexpected deny reason %+v", decisions[i])
		}
	}

	if granted != 1 {
		t.Fatalf("a single unit must unlock exactly one property, granted %d", granted)
	}
	if used := packageUsed(t, db, pkg.ID); used != 1 {
		t.Fatalf("expected used=1, got %d", used)
	}
	if count := countAccesses(t, db); count != 1 {
		t.Fatalf("expected one access record, got %d", count)
	}
}

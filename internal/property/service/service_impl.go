package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	accessdomain "github.com/quarterfind/quarterfind/internal/access/domain"
	"github.com/quarterfind/quarterfind/internal/clock"
	"github.com/quarterfind/quarterfind/internal/property/domain"
	tokendomain "github.com/quarterfind/quarterfind/internal/token/domain"
	userdomain "github.com/quarterfind/quarterfind/internal/user/domain"
	"github.com/quarterfind/quarterfind/pkg/db/pagination"
	"github.com/quarterfind/quarterfind/pkg/db/txn"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	UserRepo  userdomain.Repository
	TokenSvc  tokendomain.Service
	AccessSvc accessdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	users     userdomain.Repository
	tokenSvc  tokendomain.Service
	accessSvc accessdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("property.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		users:     p.UserRepo,
		tokenSvc:  p.TokenSvc,
		accessSvc: p.AccessSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePropertyRequest) (domain.Property, error) {
	ownerID, err := snowflake.ParseString(req.OwnerID)
	if err != nil {
		return domain.Property{}, domain.ErrInvalidOwner
	}
	if err := validateFields(req.Fields); err != nil {
		return domain.Property{}, err
	}

	now := s.clock.Now()
	property := domain.Property{
		ID:        s.genID.Generate(),
		OwnerID:   ownerID,
		Slug:      slug.Make(req.Fields.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyFields(&property, req.Fields)

	// Property row and the owner's uploaded list move together; a user
	// lookup failure inside the scope aborts the whole operation.
	err = txn.Run(ctx, s.db, func(tx *gorm.DB) error {
		user, err := s.users.FindByID(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrOwnerNotFound
		}

		if err := s.repo.Insert(ctx, tx, &property); err != nil {
			return err
		}

		user.UploadedProperties = append(user.UploadedProperties, property.ID.String())
		return s.users.SaveUploadedProperties(ctx, tx, ownerID, user.UploadedProperties)
	})
	if err != nil {
		return domain.Property{}, err
	}

	s.log.Info("property created",
		zap.String("property_id", property.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return property, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePropertyRequest) (domain.Property, error) {
	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return domain.Property{}, domain.ErrInvalidID
	}
	ownerID, err := snowflake.ParseString(req.OwnerID)
	if err != nil {
		return domain.Property{}, domain.ErrInvalidOwner
	}
	if err := validateFields(req.Fields); err != nil {
		return domain.Property{}, err
	}

	property, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Property{}, err
	}
	if property == nil {
		return domain.Property{}, domain.ErrNotFound
	}
	if property.OwnerID != ownerID {
		return domain.Property{}, domain.ErrNotOwner
	}

	applyFields(property, req.Fields)
	property.Slug = slug.Make(req.Fields.Title)
	property.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, property); err != nil {
		return domain.Property{}, err
	}
	return *property, nil
}

func (s *Service) Get(ctx context.Context, req domain.GetPropertyRequest) (domain.View, error) {
	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return domain.View{}, domain.ErrInvalidID
	}

	property, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.View{}, err
	}
	if property == nil {
		return domain.View{}, domain.ErrNotFound
	}

	granted := false
	reason := ""
	if req.ViewerID != "" {
		viewerID, err := snowflake.ParseString(req.ViewerID)
		if err != nil {
			return domain.View{}, domain.ErrInvalidID
		}
		switch {
		case property.OwnerID == viewerID:
			granted = true
			reason = string(accessdomain.ReasonOwner)
		default:
			unlocked, err := s.tokenSvc.HasAccessTo(ctx, req.ViewerID, req.ID)
			if err != nil {
				return domain.View{}, err
			}
			if unlocked {
				granted = true
				reason = string(accessdomain.ReasonAlreadyUnlocked)
			}
		}
	}

	// Hidden listings are only visible to their owner.
	if !property.Status && reason != string(accessdomain.ReasonOwner) {
		return domain.View{}, domain.ErrNotFound
	}

	if err := s.repo.IncrementViewCount(ctx, s.db, id); err != nil {
		s.log.Warn("view count increment failed", zap.Error(err))
	}

	view := domain.Project(property, granted)
	view.AccessReason = reason
	return view, nil
}

func (s *Service) Unlock(ctx context.Context, req domain.GetPropertyRequest) (domain.UnlockResult, error) {
	decision, err := s.accessSvc.Decide(ctx, accessdomain.DecideRequest{
		UserID:     req.ViewerID,
		PropertyID: req.ID,
	})
	if err != nil {
		return domain.UnlockResult{}, mapAccessErr(err)
	}

	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return domain.UnlockResult{}, domain.ErrInvalidID
	}
	property, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.UnlockResult{}, err
	}
	if property == nil {
		return domain.UnlockResult{}, domain.ErrNotFound
	}

	view := domain.Project(property, decision.Granted)
	view.AccessReason = string(decision.Reason)
	return domain.UnlockResult{Decision: decision, View: view}, nil
}

func (s *Service) ListByOwner(ctx context.Context, req domain.ListByOwnerRequest) (domain.ListByOwnerResponse, error) {
	ownerID, err := snowflake.ParseString(req.OwnerID)
	if err != nil {
		return domain.ListByOwnerResponse{}, domain.ErrInvalidOwner
	}

	page := req.Page.Normalize()
	filter := domain.ListFilter{
		Type:        req.Type,
		Status:      req.Status,
		CreatedFrom: req.From,
		CreatedTo:   req.To,
	}

	items, total, err := s.repo.ListByOwner(ctx, s.db, ownerID, filter, page)
	if err != nil {
		return domain.ListByOwnerResponse{}, err
	}

	summaries := make([]domain.Summary, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		summary := domain.Summarize(item)
		summary.HasAccess = true // owners always see their own listings in full
		summaries = append(summaries, summary)
	}

	return domain.ListByOwnerResponse{
		PageInfo:   pagination.BuildPageInfo(page, total),
		Properties: summaries,
	}, nil
}

func (s *Service) AnnotateSearchPage(ctx context.Context, viewerID string, rows []domain.Summary) ([]domain.Summary, error) {
	if viewerID == "" {
		return rows, nil
	}

	unlocked, err := s.tokenSvc.UnlockedPropertyIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		_, ok := unlocked[rows[i].ID]
		rows[i].HasAccess = ok || rows[i].OwnerID == viewerID
	}
	return rows, nil
}

func (s *Service) Deactivate(ctx context.Context, id, ownerID string) error {
	propID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.ErrInvalidID
	}
	owner, err := snowflake.ParseString(ownerID)
	if err != nil {
		return domain.ErrInvalidOwner
	}

	property, err := s.repo.FindByID(ctx, s.db, propID)
	if err != nil {
		return err
	}
	if property == nil {
		return domain.ErrNotFound
	}
	if property.OwnerID != owner {
		return domain.ErrNotOwner
	}

	return s.repo.SetStatus(ctx, s.db, propID, false)
}

func validateFields(fields domain.PropertyFields) error {
	if strings.TrimSpace(fields.Title) == "" {
		return domain.ErrInvalidTitle
	}
	if _, ok := domain.ValidTypes[fields.Type]; !ok {
		return domain.ErrInvalidType
	}
	if fields.RentAmount <= 0 {
		return domain.ErrInvalidRent
	}
	return nil
}

func applyFields(property *domain.Property, fields domain.PropertyFields) {
	property.Title = strings.TrimSpace(fields.Title)
	property.Description = fields.Description
	property.Type = fields.Type
	property.FloorLevel = fields.FloorLevel
	property.Size = fields.Size
	property.RentAmount = fields.RentAmount
	property.Currency = fields.Currency
	property.PaymentFrequency = fields.PaymentFrequency
	property.SecurityDeposit = fields.SecurityDeposit
	property.Images = datatypes.NewJSONSlice(fields.Images)
	property.Videos = datatypes.NewJSONSlice(fields.Videos)
	property.Location = datatypes.NewJSONType(fields.Location)
	property.Amenities = datatypes.NewJSONType(fields.Amenities)
	property.HouseRules = datatypes.NewJSONType(fields.HouseRules)
	property.Contact = datatypes.NewJSONType(fields.Contact)
	property.Status = fields.Status
}

func mapAccessErr(err error) error {
	switch err {
	case accessdomain.ErrInvalidReference:
		return domain.ErrInvalidID
	case accessdomain.ErrNotFound:
		return domain.ErrNotFound
	default:
		return err
	}
}

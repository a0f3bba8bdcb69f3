package services

import (
	"context"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const msgPromotionCodeTaken = "the code has already been taken"

// PromotionInput is the payload of a promo code create or update. IsActive
// defaults to true on create and must be sent on update.
type PromotionInput struct {
	Code      string           `json:"code" form:"code" validate:"required,max=50"`
	Type      string           `json:"type" form:"type" validate:"required,oneof=fixed percentage"`
	Value     *decimal.Decimal `json:"value" form:"value" validate:"required,gte=0"`
	ValidFrom string           `json:"valid_from" form:"valid_from" validate:"omitempty,datetime=2006-01-02"`
	ValidTo   string           `json:"valid_to" form:"valid_to" validate:"omitempty,datetime=2006-01-02"`
	IsActive  *bool            `json:"is_active" form:"is_active"`
}

type PromotionService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPromotionService(db *gorm.DB, log *zap.Logger) *PromotionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PromotionService{db: db, log: log}
}

// check validates in and returns its optional validity window.
func (in *PromotionInput) check(update bool) (from, to *models.Date, err error) {
	in.Code = strings.TrimSpace(in.Code)
	in.ValidFrom = strings.TrimSpace(in.ValidFrom)
	in.ValidTo = strings.TrimSpace(in.ValidTo)

	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, nil, err
	}
	if update {
		if err := checkVar(v, "is_active", in.IsActive, "required"); err != nil {
			return nil, nil, err
		}
	}
	if in.ValidFrom != "" && !v.has("valid_from") {
		d := models.MustParseDate(in.ValidFrom)
		from = &d
	}
	if in.ValidTo != "" && !v.has("valid_to") {
		d := models.MustParseDate(in.ValidTo)
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		v.add("valid_to", "the valid to must be a date after or equal to valid from")
	}
	return from, to, v.err()
}

func (s *PromotionService) codeTaken(tx *gorm.DB, code string, exceptID uint) (bool, error) {
	var n int64
	q := tx.Model(&models.Promotion{}).Where("code = ?", code)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Annotate(err, "checking promotion code")
	}
	return n > 0, nil
}

// List returns every promotion, newest first.
func (s *PromotionService) List(ctx context.Context) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&promos).Error
	if err != nil {
		return nil, errors.Annotate(err, "listing promotions")
	}
	return promos, nil
}

func (s *PromotionService) Get(ctx context.Context, id uint) (*models.Promotion, error) {
	var promo models.Promotion
	if err := s.db.WithContext(ctx).First(&promo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("promotion %d", id)
		}
		return nil, errors.Annotate(err, "loading promotion")
	}
	return &promo, nil
}

func (s *PromotionService) Create(ctx context.Context, in PromotionInput) (*models.Promotion, error) {
	from, to, err := in.check(false)
	if err != nil {
		return nil, err
	}

	promo := models.Promotion{
		Code:      in.Code,
		Type:      models.PromotionType(in.Type),
		Value:     *in.Value,
		ValidFrom: from,
		ValidTo:   to,
		IsActive:  in.IsActive == nil || *in.IsActive,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := s.codeTaken(tx, promo.Code, 0)
		if err != nil {
			return err
		}
		if taken {
			return invalidField("code", msgPromotionCodeTaken)
		}
		return s.save(tx, &promo)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("promotion created", zap.Uint("promotion_id", promo.ID), zap.String("code", promo.Code))
	return &promo, nil
}

func (s *PromotionService) Update(ctx context.Context, id uint, in PromotionInput) (*models.Promotion, error) {
	from, to, err := in.check(true)
	if err != nil {
		return nil, err
	}

	var promo models.Promotion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&promo, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("promotion %d", id)
			}
			return errors.Annotate(err, "loading promotion")
		}
		taken, err := s.codeTaken(tx, in.Code, promo.ID)
		if err != nil {
			return err
		}
		if taken {
			return invalidField("code", msgPromotionCodeTaken)
		}

		promo.Code = in.Code
		promo.Type = models.PromotionType(in.Type)
		promo.Value = *in.Value
		promo.ValidFrom = from
		promo.ValidTo = to
		promo.IsActive = *in.IsActive
		return s.save(tx, &promo)
	})
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *PromotionService) save(tx *gorm.DB, promo *models.Promotion) error {
	if err := tx.Save(promo).Error; err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return invalidField("code", msgPromotionCodeTaken)
		}
		return errors.Annotate(err, "saving promotion")
	}
	return nil
}

func (s *PromotionService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Promotion{}, id)
	if res.Error != nil {
		return errors.Annotate(res.Error, "deleting promotion")
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundf("promotion %d", id)
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	carsPerPage   = 10
	carImageMaxKB = 2048
	carsFolder    = "cars"
)

var carImageTypes = []string{"jpeg", "png", "jpg", "webp"}

// CarInput is the allow-listed payload of a car create or update.
type CarInput struct {
	Brand        string           `json:"brand" form:"brand" validate:"required,max=50"`
	Model        string           `json:"model" form:"model" validate:"required,max=50"`
	Year         int              `json:"year" form:"year" validate:"required,gte=1900"`
	LicensePlate string           `json:"license_plate" form:"license_plate" validate:"required,max=15"`
	PricePerDay  decimal.Decimal  `json:"price_per_day" form:"price_per_day" validate:"gte=0"`
	Description  string           `json:"description" form:"description"`
	Status       models.CarStatus `json:"status" form:"status" validate:"required,oneof=available rented maintenance"`
	Features     []string         `json:"features" form:"features"`
}

// CarFilter narrows the admin fleet list. Zero values are ignored.
type CarFilter struct {
	Search    string
	Status    models.CarStatus
	Brand     string
	YearFrom  int
	YearTo    int
	PriceFrom *decimal.Decimal
	PriceTo   *decimal.Decimal
	Features  []string
	Page      int
}

type CarService struct {
	db    *gorm.DB
	files FileStore
	clock clock.Clock
	log   *zap.Logger
}

func NewCarService(db *gorm.DB, files FileStore, clk clock.Clock, log *zap.Logger) *CarService {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CarService{db: db, files: files, clock: clk, log: log}
}

func (s *CarService) validate(in *CarInput) (validation, error) {
	in.Brand = strings.TrimSpace(in.Brand)
	in.Model = strings.TrimSpace(in.Model)
	in.LicensePlate = strings.TrimSpace(in.LicensePlate)

	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	if maxYear := s.clock.Now().Year() + 1; !v.has("year") && in.Year > maxYear {
		v.add("year", fmt.Sprintf("the year may not be greater than %d", maxYear))
	}
	return v, nil
}

func validateImages(v validation, field string, images []Upload) error {
	types := "oneof=" + strings.Join(carImageTypes, " ")
	for _, img := range images {
		if err := checkVar(v, field, img.Ext(), types); err != nil {
			return err
		}
		if err := checkVar(v, field, (img.Size+1023)/1024, fmt.Sprintf("lte=%d", carImageMaxKB)); err != nil {
			return err
		}
		if v.has(field) {
			return nil
		}
	}
	return nil
}

func (s *CarService) plateTaken(tx *gorm.DB, plate string, exceptID uint) (bool, error) {
	var n int64
	q := tx.Unscoped().Model(&models.Car{}).Where("license_plate = ?", plate)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Annotate(err, "checking license plate")
	}
	return n > 0, nil
}

func (s *CarService) storeImages(ctx context.Context, images []Upload) ([]string, error) {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, err := s.files.Store(ctx, carsFolder, img)
		if err != nil {
			s.removeFiles(ctx, paths)
			return nil, errors.Annotate(err, "storing car image")
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *CarService) removeFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			s.log.Warn("failed to delete car image", zap.String("path", p), zap.Error(err))
		}
	}
}

// Create stores the images and inserts the car. At least one image is
// required.
func (s *CarService) Create(ctx context.Context, in CarInput, images []Upload) (*models.Car, error) {
	v, err := s.validate(&in)
	if err != nil {
		return nil, err
	}
	if err := checkVar(v, "image_files", images, "required,min=1"); err != nil {
		return nil, err
	}
	if err := validateImages(v, "image_files", images); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	taken, err := s.plateTaken(s.db.WithContext(ctx), in.LicensePlate, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalidField("license_plate", "the license plate has already been taken")
	}

	paths, err := s.storeImages(ctx, images)
	if err != nil {
		return nil, err
	}

	car := models.Car{
		Brand:        in.Brand,
		Model:        in.Model,
		Year:         in.Year,
		LicensePlate: in.LicensePlate,
		PricePerDay:  in.PricePerDay,
		Description:  in.Description,
		Status:       in.Status,
		Features:     normalizeFeatures(in.Features),
		ImageURLs:    paths,
	}
	if err := s.db.WithContext(ctx).Create(&car).Error; err != nil {
		s.removeFiles(ctx, paths)
		if isPgError(err, pgerrcode.UniqueViolation) {
			return nil, invalidField("license_plate", "the license plate has already been taken")
		}
		return nil, errors.Annotate(err, "creating car")
	}
	return &car, nil
}

// CarUpdate carries the image changes of an update next to the fields.
type CarUpdate struct {
	CarInput
	ImagesToDelete []string
	NewImages      []Upload
}

// Update rewrites the car, removing images listed in ImagesToDelete and
// appending NewImages to the ordered image list.
func (s *CarService) Update(ctx context.Context, id uint, in CarUpdate) (*models.Car, error) {
	v, err := s.validate(&in.CarInput)
	if err != nil {
		return nil, err
	}
	if err := validateImages(v, "new_images", in.NewImages); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	car, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	taken, err := s.plateTaken(s.db.WithContext(ctx), in.LicensePlate, car.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalidField("license_plate", "the license plate has already been taken")
	}

	added, err := s.storeImages(ctx, in.NewImages)
	if err != nil {
		return nil, err
	}

	remove := make(map[string]struct{}, len(in.ImagesToDelete))
	for _, p := range in.ImagesToDelete {
		remove[p] = struct{}{}
	}
	images := make([]string, 0, len(car.ImageURLs)+len(added))
	var dropped []string
	for _, p := range car.ImageURLs {
		if _, ok := remove[p]; ok {
			dropped = append(dropped, p)
			continue
		}
		images = append(images, p)
	}
	images = append(images, added...)

	car.Brand = in.Brand
	car.Model = in.Model
	car.Year = in.Year
	car.LicensePlate = in.LicensePlate
	car.PricePerDay = in.PricePerDay
	car.Description = in.Description
	car.Status = in.Status
	car.Features = normalizeFeatures(in.Features)
	car.ImageURLs = images

	if err := s.db.WithContext(ctx).Save(car).Error; err != nil {
		s.removeFiles(ctx, added)
		if isPgError(err, pgerrcode.UniqueViolation) {
			return nil, invalidField("license_plate", "the license plate has already been taken")
		}
		return nil, errors.Annotate(err, "updating car")
	}

	s.removeFiles(ctx, dropped)
	return car, nil
}

// Delete removes the car and its images. Bookings of the car are left
// untouched.
func (s *CarService) Delete(ctx context.Context, id uint) error {
	car, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(car).Error; err != nil {
		return errors.Annotate(err, "deleting car")
	}
	s.removeFiles(ctx, car.ImageURLs)
	return nil
}

// BulkUpdateStatus moves cars in or out of maintenance.
func (s *CarService) BulkUpdateStatus(ctx context.Context, ids []uint, status models.CarStatus) (int, error) {
	v := validation{}
	if err := checkVar(v, "ids", ids, "required,min=1"); err != nil {
		return 0, err
	}
	if err := checkVar(v, "status", string(status), "required,oneof=available maintenance"); err != nil {
		return 0, err
	}
	if err := v.err(); err != nil {
		return 0, err
	}

	unique := uniqueIDs(ids)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found []uint
		if err := tx.Model(&models.Car{}).Where("id IN ?", unique).Pluck("id", &found).Error; err != nil {
			return errors.Annotate(err, "loading cars")
		}
		if missing := missingIDs(unique, found); len(missing) > 0 {
			return invalidField("ids", fmt.Sprintf("unknown cars: %s", joinIDs(missing)))
		}
		if err := tx.Model(&models.Car{}).Where("id IN ?", unique).Update("status", status).Error; err != nil {
			return errors.Annotate(err, "updating cars")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(unique), nil
}

func (s *CarService) Get(ctx context.Context, id uint) (*models.Car, error) {
	var car models.Car
	if err := s.db.WithContext(ctx).First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("car %d", id)
		}
		return nil, errors.Annotate(err, "loading car")
	}
	return &car, nil
}

func (s *CarService) List(ctx context.Context, f CarFilter) (Page[models.Car], error) {
	q := s.db.WithContext(ctx).Model(&models.Car{})
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("brand LIKE ? OR model LIKE ? OR license_plate LIKE ?", like, like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Brand != "" {
		q = q.Where("brand = ?", f.Brand)
	}
	if f.YearFrom != 0 {
		q = q.Where("year >= ?", f.YearFrom)
	}
	if f.YearTo != 0 {
		q = q.Where("year <= ?", f.YearTo)
	}
	if f.PriceFrom != nil {
		q = q.Where("price_per_day >= ?", *f.PriceFrom)
	}
	if f.PriceTo != nil {
		q = q.Where("price_per_day <= ?", *f.PriceTo)
	}
	for _, feature := range normalizeFeatures(f.Features) {
		q = q.Where("features LIKE ?", "%"+fmt.Sprintf("%q", feature)+"%")
	}
	q = q.Order("created_at desc").Order("id desc")

	page, err := paginate[models.Car](q, f.Page, carsPerPage)
	if err != nil {
		return Page[models.Car]{}, errors.Annotate(err, "listing cars")
	}
	return page, nil
}

// Brands lists the distinct brands of the fleet for filter dropdowns.
func (s *CarService) Brands(ctx context.Context) ([]string, error) {
	var brands []string
	err := s.db.WithContext(ctx).Model(&models.Car{}).Distinct().Order("brand").Pluck("brand", &brands).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading brands")
	}
	return brands, nil
}

// ListAvailable is the public catalogue: available cars, newest first.
func (s *CarService) ListAvailable(ctx context.Context) ([]models.Car, error) {
	var cars []models.Car
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CarStatusAvailable).
		Order("created_at desc").
		Find(&cars).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading available cars")
	}
	return cars, nil
}

// normalizeFeatures trims tags and drops blanks and duplicates. Feature
// sets are unordered, so the first spelling wins.
func normalizeFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/pkg/utils"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingOrigin says which surface created a booking. Admin bookings skip
// the pending state.
type BookingOrigin string

const (
	OriginAdmin BookingOrigin = "admin"
	OriginAPI   BookingOrigin = "api"
)

const (
	bookingsPerPage   = 15
	msgCarUnavailable = "the car is not available for the selected dates"
)

// BookingInput is the allow-listed payload of a new booking.
type BookingInput struct {
	UserID    uint   `json:"user_id" form:"user_id" validate:"required"`
	CarID     uint   `json:"car_id" form:"car_id" validate:"required"`
	StartDate string `json:"start_date" form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" form:"end_date" validate:"required,datetime=2006-01-02"`
}

const bookingStatusRule = "required,oneof=pending confirmed completed cancelled"

// BookingFilter narrows the admin booking list. Zero values are ignored.
type BookingFilter struct {
	StartFrom     *models.Date
	EndUntil      *models.Date
	Status        models.BookingStatus
	PaymentStatus models.PaymentStatus
	CarID         uint
	Page          int
}

// BookingService validates reservations against a car's calendar, prices
// them and applies status transitions.
type BookingService struct {
	db        *gorm.DB
	clock     clock.Clock
	log       *zap.Logger
	listeners []BookingListener
}

func NewBookingService(db *gorm.DB, clk clock.Clock, log *zap.Logger, listeners ...BookingListener) *BookingService {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{db: db, clock: clk, log: log, listeners: listeners}
}

func (s *BookingService) today() models.Date {
	return models.NewDate(s.clock.Now())
}

func (s *BookingService) notify(ctx context.Context, kind string, b *models.Booking) {
	event := newBookingEvent(kind, b)
	for _, l := range s.listeners {
		l.BookingChanged(ctx, event)
	}
}

// Create validates in, rejects it if the car is already reserved for any
// day of the range, and stores the priced booking.
func (s *BookingService) Create(ctx context.Context, origin BookingOrigin, in BookingInput) (*models.Booking, error) {
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	start, _ := models.ParseDate(in.StartDate)
	end, _ := models.ParseDate(in.EndDate)
	if !v.has("start_date") && start.Before(s.today()) {
		v.add("start_date", "the start date must be today or later")
	}
	if !v.has("start_date") && !v.has("end_date") && end.Before(start) {
		v.add("end_date", "the end date must be on or after the start date")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	status := models.BookingStatusPending
	if origin == OriginAdmin {
		status = models.BookingStatusConfirmed
	}

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users int64
		if err := tx.Model(&models.User{}).Where("id = ?", in.UserID).Count(&users).Error; err != nil {
			return errors.Annotate(err, "checking user")
		}
		if users == 0 {
			return invalidField("user_id", "the selected user does not exist")
		}

		car, err := lockCar(tx, in.CarID)
		if err != nil {
			return err
		}

		overlap, err := hasOverlap(tx, car.ID, start, end, 0)
		if err != nil {
			return err
		}
		if overlap {
			return invalidField("car_id", msgCarUnavailable)
		}

		booking = models.Booking{
			UserID:     in.UserID,
			CarID:      car.ID,
			StartDate:  start,
			EndDate:    end,
			TotalPrice: utils.RentalPrice(utils.RentalDays(start, end), car.PricePerDay),
			Status:     status,
		}
		if err := tx.Create(&booking).Error; err != nil {
			if isPgError(err, pgerrcode.ExclusionViolation) {
				return invalidField("car_id", msgCarUnavailable)
			}
			return errors.Annotate(err, "creating booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.Uint("booking_id", booking.ID),
		zap.Uint("car_id", booking.CarID),
		zap.String("status", string(booking.Status)),
		zap.String("origin", string(origin)))
	s.notify(ctx, EventBookingCreated, &booking)
	return &booking, nil
}

// lockCar loads the car and, on PostgreSQL, holds its row lock until the
// transaction ends so concurrent bookings of one car serialize.
func lockCar(tx *gorm.DB, id uint) (*models.Car, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var car models.Car
	if err := q.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidField("car_id", "the selected car does not exist")
		}
		return nil, errors.Annotate(err, "loading car")
	}
	return &car, nil
}

// hasOverlap applies the inclusive-day intersection test against every
// non-cancelled booking of the car other than exceptID.
func hasOverlap(tx *gorm.DB, carID uint, start, end models.Date, exceptID uint) (bool, error) {
	q := tx.Model(&models.Booking{}).
		Where("car_id = ?", carID).
		Where("status <> ?", models.BookingStatusCancelled).
		Where("start_date <= ? AND end_date >= ?", end, start)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	err := q.Count(&n).Error
	if err != nil {
		return false, errors.Annotate(err, "checking overlapping bookings")
	}
	return n > 0, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (s *BookingService) Get(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Car").
		Preload("Payment").
		First(&booking, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("booking %d", id)
		}
		return nil, errors.Annotate(err, "loading booking")
	}
	return &booking, nil
}

// List returns one page of bookings, newest first.
func (s *BookingService) List(ctx context.Context, f BookingFilter) (Page[models.Booking], error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.StartFrom != nil {
		q = q.Where("start_date >= ?", *f.StartFrom)
	}
	if f.EndUntil != nil {
		q = q.Where("end_date <= ?", *f.EndUntil)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("id IN (?)", s.db.Model(&models.Payment{}).
			Select("booking_id").
			Where("status = ?", f.PaymentStatus))
	}
	if f.CarID != 0 {
		q = q.Where("car_id = ?", f.CarID)
	}
	q = q.Order("created_at desc").Order("id desc")

	page, err := paginate[models.Booking](q, f.Page, bookingsPerPage, "User", "Car", "Payment")
	if err != nil {
		return Page[models.Booking]{}, errors.Annotate(err, "listing bookings")
	}
	return page, nil
}

// Calendar returns every non-cancelled booking, unpaginated.
func (s *BookingService) Calendar(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Car").
		Preload("Payment").
		Where("status <> ?", models.BookingStatusCancelled).
		Order("start_date").
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading booking calendar")
	}
	return bookings, nil
}

// ListForUser returns the renter's own bookings, newest first.
func (s *BookingService) ListForUser(ctx context.Context, userID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Preload("Car").
		Preload("Payment").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading user bookings")
	}
	return bookings, nil
}

func validateBookingStatus(status models.BookingStatus) error {
	v := validation{}
	if err := checkVar(v, "status", string(status), bookingStatusRule); err != nil {
		return err
	}
	return v.err()
}

// UpdateStatus moves one booking to status. Re-applying the current status
// changes nothing.
func (s *BookingService) UpdateStatus(ctx context.Context, id uint, status models.BookingStatus) (*models.Booking, error) {
	if err := validateBookingStatus(status); err != nil {
		return nil, err
	}

	var (
		booking models.Booking
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("booking %d", id)
			}
			return errors.Annotate(err, "loading booking")
		}
		var err error
		changed, err = s.transition(tx, &booking, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.notify(ctx, EventBookingStatusChanged, &booking)
	}
	return &booking, nil
}

// BulkUpdateStatus applies status to every booking in ids. Unknown ids
// reject the whole call before anything is written.
func (s *BookingService) BulkUpdateStatus(ctx context.Context, ids []uint, status models.BookingStatus) (int, error) {
	v := validation{}
	if err := checkVar(v, "ids", ids, "required,min=1"); err != nil {
		return 0, err
	}
	if err := checkVar(v, "status", string(status), bookingStatusRule); err != nil {
		return 0, err
	}
	if err := v.err(); err != nil {
		return 0, err
	}

	unique := uniqueIDs(ids)
	var updated []models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bookings []models.Booking
		if err := tx.Where("id IN ?", unique).Order("id").Find(&bookings).Error; err != nil {
			return errors.Annotate(err, "loading bookings")
		}
		found := make([]uint, len(bookings))
		for i := range bookings {
			found[i] = bookings[i].ID
		}
		if missing := missingIDs(unique, found); len(missing) > 0 {
			return invalidField("ids", fmt.Sprintf("unknown bookings: %s", joinIDs(missing)))
		}

		for i := range bookings {
			changed, err := s.transition(tx, &bookings[i], status)
			if err != nil {
				return err
			}
			if changed {
				updated = append(updated, bookings[i])
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range updated {
		s.notify(ctx, EventBookingStatusChanged, &updated[i])
	}
	return len(unique), nil
}

// transition writes the new status and, for completed or cancelled
// bookings, hands the car back to the fleet. A cancelled booking only comes
// back if its dates are still free.
func (s *BookingService) transition(tx *gorm.DB, b *models.Booking, status models.BookingStatus) (bool, error) {
	if b.Status == status {
		return false, nil
	}
	if b.Status == models.BookingStatusCancelled {
		if _, err := lockCar(tx, b.CarID); err != nil {
			return false, err
		}
		overlap, err := hasOverlap(tx, b.CarID, b.StartDate, b.EndDate, b.ID)
		if err != nil {
			return false, err
		}
		if overlap {
			return false, invalidField("car_id", msgCarUnavailable)
		}
	}
	if err := tx.Model(b).Update("status", status).Error; err != nil {
		if isPgError(err, pgerrcode.ExclusionViolation) {
			return false, invalidField("car_id", msgCarUnavailable)
		}
		return false, errors.Annotatef(err, "updating booking %d", b.ID)
	}
	b.Status = status

	if status.ReleasesCar() {
		if err := s.releaseCar(tx, b); err != nil {
			return false, err
		}
	}
	return true, nil
}

// releaseCar marks the car available unless another confirmed booking of
// the same car is running today.
func (s *BookingService) releaseCar(tx *gorm.DB, b *models.Booking) error {
	today := s.today()
	var active int64
	err := tx.Model(&models.Booking{}).
		Where("car_id = ? AND id <> ?", b.CarID, b.ID).
		Where("status = ?", models.BookingStatusConfirmed).
		Where("start_date <= ? AND end_date >= ?", today, today).
		Count(&active).Error
	if err != nil {
		return errors.Annotate(err, "checking active bookings")
	}
	if active > 0 {
		s.log.Info("car kept rented by another active booking",
			zap.Uint("car_id", b.CarID), zap.Uint("booking_id", b.ID))
		return nil
	}

	err = tx.Model(&models.Car{}).
		Where("id = ?", b.CarID).
		Update("status", models.CarStatusAvailable).Error
	if err != nil {
		return errors.Annotatef(err, "releasing car %d", b.CarID)
	}
	return nil
}

// Delete removes a booking and its payment. Confirmed bookings that have
// not started yet or are running today cannot be deleted.
func (s *BookingService) Delete(ctx context.Context, id uint) error {
	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("booking %d", id)
			}
			return errors.Annotate(err, "loading booking")
		}

		if booking.Status == models.BookingStatusConfirmed && !booking.StartDate.Before(s.today()) {
			return failedPrecondition("cannot delete an active or upcoming confirmed booking")
		}

		if err := tx.Unscoped().Where("booking_id = ?", booking.ID).Delete(&models.Payment{}).Error; err != nil {
			return errors.Annotate(err, "deleting booking payment")
		}
		if err := tx.Delete(&booking).Error; err != nil {
			return errors.Annotate(err, "deleting booking")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, EventBookingDeleted, &booking)
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// missingIDs returns the members of want absent from found.
func missingIDs(want, found []uint) []uint {
	have := make(map[uint]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	var missing []uint
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

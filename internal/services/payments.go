package services

import (
	"context"
	"strings"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const paymentsPerPage = 15

type PaymentInput struct {
	BookingID     uint            `json:"booking_id" form:"booking_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" form:"amount" validate:"gte=0"`
	PaymentMethod string          `json:"payment_method" form:"payment_method" validate:"required,max=50"`
	TransactionID string          `json:"transaction_id" form:"transaction_id" validate:"max=100"`
}

// PaymentFilter narrows the admin payment list. Dates bound paid_at.
type PaymentFilter struct {
	PaidFrom *models.Date
	PaidTo   *models.Date
	Status   models.PaymentStatus
	Method   string
	Page     int
}

// PaymentKPIs summarize the payment ledger.
type PaymentKPIs struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	TotalTransactions int64           `json:"total_transactions"`
}

// PaymentService records payments and confirms the bookings they settle.
type PaymentService struct {
	db       *gorm.DB
	bookings *BookingService
	clock    clock.Clock
	log      *zap.Logger
}

func NewPaymentService(db *gorm.DB, bookings *BookingService, clk clock.Clock, log *zap.Logger) *PaymentService {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{db: db, bookings: bookings, clock: clk, log: log}
}

// Create records a settled payment from the mobile client. Renters may only
// pay for their own bookings.
func (s *PaymentService) Create(ctx context.Context, actor Actor, in PaymentInput) (*models.Payment, error) {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var (
		payment   models.Payment
		booking   models.Booking
		confirmed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, in.BookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidField("booking_id", "the selected booking does not exist")
			}
			return errors.Annotate(err, "loading booking")
		}
		if actor.HasRole(models.RoleRenter) && booking.UserID != actor.ID {
			return errors.Forbiddenf("booking %d belongs to another user", booking.ID)
		}

		var existing int64
		if err := tx.Model(&models.Payment{}).Where("booking_id = ?", booking.ID).Count(&existing).Error; err != nil {
			return errors.Annotate(err, "checking payments")
		}
		if existing > 0 {
			return invalidField("booking_id", "the booking has already been paid")
		}

		now := s.clock.Now()
		payment = models.Payment{
			BookingID:     booking.ID,
			Amount:        in.Amount,
			PaymentMethod: in.PaymentMethod,
			TransactionID: in.TransactionID,
			Status:        models.PaymentStatusSuccess,
			PaidAt:        &now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return errors.Annotate(err, "creating payment")
		}

		var err error
		confirmed, err = s.bookings.transition(tx, &booking, models.BookingStatusConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.bookings.notify(ctx, EventBookingStatusChanged, &booking)
	}
	return &payment, nil
}

// UpdateStatus is the admin override of a payment's state. A successful
// payment confirms its booking; other states clear paid_at.
func (s *PaymentService) UpdateStatus(ctx context.Context, id uint, status models.PaymentStatus) (*models.Payment, error) {
	v := validation{}
	if err := checkVar(v, "status", string(status), "required,oneof=success failed pending"); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var (
		payment   models.Payment
		booking   models.Booking
		confirmed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("payment %d", id)
			}
			return errors.Annotate(err, "loading payment")
		}

		var paidAt *time.Time
		if status == models.PaymentStatusSuccess {
			now := s.clock.Now()
			paidAt = &now
		}
		err := tx.Model(&payment).Updates(map[string]interface{}{
			"status":  status,
			"paid_at": paidAt,
		}).Error
		if err != nil {
			return errors.Annotate(err, "updating payment")
		}
		payment.Status = status
		payment.PaidAt = paidAt

		if status != models.PaymentStatusSuccess {
			return nil
		}
		if err := tx.First(&booking, payment.BookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.log.Warn("payment without booking", zap.Uint("payment_id", payment.ID))
				return nil
			}
			return errors.Annotate(err, "loading booking")
		}
		confirmed, err = s.bookings.transition(tx, &booking, models.BookingStatusConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.bookings.notify(ctx, EventBookingStatusChanged, &booking)
	}
	return &payment, nil
}

// List returns one page of payments, newest first, with the ledger KPIs.
func (s *PaymentService) List(ctx context.Context, f PaymentFilter) (Page[models.Payment], PaymentKPIs, error) {
	kpis, err := s.kpis(ctx)
	if err != nil {
		return Page[models.Payment]{}, PaymentKPIs{}, err
	}

	q := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.PaidFrom != nil {
		q = q.Where("paid_at >= ?", f.PaidFrom.Time)
	}
	if f.PaidTo != nil {
		q = q.Where("paid_at < ?", f.PaidTo.AddDays(1).Time)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Method != "" {
		q = q.Where("LOWER(payment_method) = ?", strings.ToLower(f.Method))
	}
	q = q.Order("created_at desc").Order("id desc")

	page, err := paginate[models.Payment](q, f.Page, paymentsPerPage, "Booking.User", "Booking.Car")
	if err != nil {
		return Page[models.Payment]{}, PaymentKPIs{}, errors.Annotate(err, "listing payments")
	}
	return page, kpis, nil
}

func (s *PaymentService) kpis(ctx context.Context) (PaymentKPIs, error) {
	var kpis PaymentKPIs
	db := s.db.WithContext(ctx)

	sum := func(status models.PaymentStatus) (decimal.Decimal, error) {
		var total decimal.Decimal
		err := db.Model(&models.Payment{}).
			Where("status = ?", status).
			Select("COALESCE(SUM(amount), 0)").
			Row().
			Scan(&total)
		return total, err
	}

	var err error
	if kpis.TotalRevenue, err = sum(models.PaymentStatusSuccess); err != nil {
		return kpis, errors.Annotate(err, "summing revenue")
	}
	if kpis.PendingAmount, err = sum(models.PaymentStatusPending); err != nil {
		return kpis, errors.Annotate(err, "summing pending payments")
	}
	if err := db.Model(&models.Payment{}).Count(&kpis.TotalTransactions).Error; err != nil {
		return kpis, errors.Annotate(err, "counting payments")
	}
	return kpis, nil
}

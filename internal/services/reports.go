package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	reportBookingsPerPage = 15
	reportDefaultDays     = 30
	trendDays             = 7
	popularCarsWindow     = 30
	popularCarsLimit      = 5
)

// DashboardKPIs are the headline numbers of the admin dashboard. Revenue is
// the booked value of bookings created in the period.
type DashboardKPIs struct {
	RevenueToday     decimal.Decimal `json:"revenue_today"`
	RevenueMonth     decimal.Decimal `json:"revenue_month"`
	NewBookingsToday int64           `json:"new_bookings_today"`
	NewUsersToday    int64           `json:"new_users_today"`
}

type DailyCount struct {
	Date  models.Date `json:"date"`
	Count int64       `json:"count"`
}

type CarPopularity struct {
	Model        string `json:"model"`
	BookingCount int64  `json:"booking_count"`
}

type Dashboard struct {
	KPIs            DashboardKPIs   `json:"kpi"`
	BookingTrend    []DailyCount    `json:"booking_trend"`
	PopularCars     []CarPopularity `json:"popular_cars"`
	PendingBookings int64           `json:"pending_bookings"`
}

// ReportFilter bounds a report by booking creation and payment dates. Empty
// dates default to the last 30 days.
type ReportFilter struct {
	StartDate string `json:"start_date" form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Page      int    `json:"page" form:"page"`
}

type ReportKPIs struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalBookings int64           `json:"total_bookings"`
	AvgDailyRate  decimal.Decimal `json:"avg_daily_rate"`
}

type DailyRevenue struct {
	Date  models.Date     `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type ReportRange struct {
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`
}

type Report struct {
	Filters          ReportRange                    `json:"filters"`
	KPIs             ReportKPIs                     `json:"kpis"`
	RevenueByDay     []DailyRevenue                 `json:"revenue_by_day"`
	BookingsByStatus map[models.BookingStatus]int64 `json:"bookings_by_status"`
	Bookings         Page[models.Booking]           `json:"bookings"`
}

// ReportService aggregates bookings and payments for the admin dashboard
// and the date-ranged reports.
type ReportService struct {
	db    *gorm.DB
	clock clock.Clock
	log   *zap.Logger
}

func NewReportService(db *gorm.DB, clk clock.Clock, log *zap.Logger) *ReportService {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportService{db: db, clock: clk, log: log}
}

func (s *ReportService) today() models.Date {
	return models.NewDate(s.clock.Now())
}

func sumColumn(q *gorm.DB, column string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.Select("COALESCE(SUM(" + column + "), 0)").Row().Scan(&total)
	return total, err
}

// Dashboard computes the dashboard figures as of the current day.
func (s *ReportService) Dashboard(ctx context.Context) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	now := s.clock.Now()
	today := s.today()
	dayStart, dayEnd := today.Time, today.AddDays(1).Time
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var (
		out Dashboard
		err error
	)
	bookingsBetween := func(from, to time.Time) *gorm.DB {
		return db.Model(&models.Booking{}).Where("created_at >= ? AND created_at < ?", from, to)
	}
	if out.KPIs.RevenueToday, err = sumColumn(bookingsBetween(dayStart, dayEnd), "total_price"); err != nil {
		return nil, errors.Annotate(err, "summing revenue of today")
	}
	if out.KPIs.RevenueMonth, err = sumColumn(bookingsBetween(monthStart, monthEnd), "total_price"); err != nil {
		return nil, errors.Annotate(err, "summing revenue of the month")
	}
	if err := bookingsBetween(dayStart, dayEnd).Count(&out.KPIs.NewBookingsToday).Error; err != nil {
		return nil, errors.Annotate(err, "counting bookings of today")
	}
	err = db.Model(&models.User{}).
		Where("role = ?", models.RoleRenter).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&out.KPIs.NewUsersToday).Error
	if err != nil {
		return nil, errors.Annotate(err, "counting new renters")
	}

	trendStart := today.AddDays(-(trendDays - 1))
	var created []time.Time
	err = bookingsBetween(trendStart.Time, dayEnd).Pluck("created_at", &created).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading booking trend")
	}
	perDay := make(map[string]int64, trendDays)
	for _, t := range created {
		perDay[models.NewDate(t.UTC()).String()]++
	}
	out.BookingTrend = make([]DailyCount, 0, trendDays)
	for d := trendStart; !d.After(today); d = d.AddDays(1) {
		out.BookingTrend = append(out.BookingTrend, DailyCount{Date: d, Count: perDay[d.String()]})
	}

	err = db.Model(&models.Booking{}).
		Select("cars.model AS model, COUNT(bookings.id) AS booking_count").
		Joins("JOIN cars ON cars.id = bookings.car_id").
		Where("bookings.created_at >= ?", now.AddDate(0, 0, -popularCarsWindow)).
		Group("cars.model").
		Order("booking_count desc").
		Order("cars.model").
		Limit(popularCarsLimit).
		Scan(&out.PopularCars).Error
	if err != nil {
		return nil, errors.Annotate(err, "ranking popular cars")
	}
	if out.PopularCars == nil {
		out.PopularCars = []CarPopularity{}
	}

	err = db.Model(&models.Booking{}).
		Where("status = ?", models.BookingStatusPending).
		Count(&out.PendingBookings).Error
	if err != nil {
		return nil, errors.Annotate(err, "counting pending bookings")
	}
	return &out, nil
}

func (s *ReportService) reportRange(f ReportFilter) (ReportRange, error) {
	f.StartDate = strings.TrimSpace(f.StartDate)
	f.EndDate = strings.TrimSpace(f.EndDate)
	v := validation{}
	if err := checkStruct(v, f); err != nil {
		return ReportRange{}, err
	}
	if err := v.err(); err != nil {
		return ReportRange{}, err
	}

	today := s.today()
	r := ReportRange{StartDate: today.AddDays(-(reportDefaultDays - 1)), EndDate: today}
	if f.StartDate != "" {
		r.StartDate = models.MustParseDate(f.StartDate)
	}
	if f.EndDate != "" {
		r.EndDate = models.MustParseDate(f.EndDate)
	}
	if r.EndDate.Before(r.StartDate) {
		return ReportRange{}, invalidField("end_date", "the end date must be on or after the start date")
	}
	return r, nil
}

// Report aggregates the bookings created and the payments settled within
// the filter's inclusive date range.
func (s *ReportService) Report(ctx context.Context, f ReportFilter) (*Report, error) {
	r, err := s.reportRange(f)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	from, to := r.StartDate.Time, r.EndDate.AddDays(1).Time
	out := Report{Filters: r}

	payments := func() *gorm.DB {
		return db.Model(&models.Payment{}).
			Where("status = ?", models.PaymentStatusSuccess).
			Where("paid_at >= ? AND paid_at < ?", from, to)
	}
	bookings := func() *gorm.DB {
		return db.Model(&models.Booking{}).Where("created_at >= ? AND created_at < ?", from, to)
	}

	if out.KPIs.TotalRevenue, err = sumColumn(payments(), "amount"); err != nil {
		return nil, errors.Annotate(err, "summing report revenue")
	}

	var priced []models.Booking
	if err := bookings().Select("id", "start_date", "end_date", "total_price").Find(&priced).Error; err != nil {
		return nil, errors.Annotate(err, "loading report bookings")
	}
	out.KPIs.TotalBookings = int64(len(priced))
	out.KPIs.AvgDailyRate = averageDailyRate(priced)

	var paid []models.Payment
	if err := payments().Select("id", "amount", "paid_at").Find(&paid).Error; err != nil {
		return nil, errors.Annotate(err, "loading report payments")
	}
	out.RevenueByDay = revenueByDay(paid)

	var statuses []struct {
		Status models.BookingStatus
		Total  int64
	}
	if err := bookings().Select("status, COUNT(*) AS total").Group("status").Scan(&statuses).Error; err != nil {
		return nil, errors.Annotate(err, "counting bookings by status")
	}
	out.BookingsByStatus = make(map[models.BookingStatus]int64, len(statuses))
	for _, st := range statuses {
		out.BookingsByStatus[st.Status] = st.Total
	}

	out.Bookings, err = paginate[models.Booking](
		bookings().Order("created_at desc").Order("id desc"),
		f.Page, reportBookingsPerPage, "User", "Car", "Payment")
	if err != nil {
		return nil, errors.Annotate(err, "listing report bookings")
	}
	return &out, nil
}

// averageDailyRate divides the mean booking price by the mean rental length
// in inclusive days.
func averageDailyRate(bookings []models.Booking) decimal.Decimal {
	if len(bookings) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	var days int64
	for _, b := range bookings {
		total = total.Add(b.TotalPrice)
		days += int64(b.StartDate.DaysUntil(b.EndDate) + 1)
	}
	if days <= 0 {
		days = int64(len(bookings))
	}
	return total.Div(decimal.NewFromInt(days)).Round(2)
}

func revenueByDay(payments []models.Payment) []DailyRevenue {
	totals := make(map[string]decimal.Decimal)
	for _, p := range payments {
		if p.PaidAt == nil {
			continue
		}
		day := models.NewDate(p.PaidAt.UTC()).String()
		totals[day] = totals[day].Add(p.Amount)
	}
	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)
	out := make([]DailyRevenue, len(days))
	for i, day := range days {
		out[i] = DailyRevenue{Date: models.MustParseDate(day), Total: totals[day]}
	}
	return out
}

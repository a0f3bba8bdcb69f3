package services

import (
	"context"
	"testing"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type reportFixture struct {
	db       *gorm.DB
	svc      *ReportService
	renter   *models.User
	avanza   *models.Car
	jazz     *models.Car
	bookings []*models.Booking
}

func at(day string, hour int) time.Time {
	return models.MustParseDate(day).Add(time.Duration(hour) * time.Hour)
}

// newReportFixture books two cars over the weeks before 2025-01-05:
//
//	b0 Avanza created 01-05, 3 days, 100, pending, payment pending
//	b1 Jazz   created 01-03, 1 day,  200, confirmed, paid 01-03
//	b2 Jazz   created 01-02, 2 days, 300, confirmed, paid 01-04
//	b3 Jazz   created 12-20, 4 days, 400, cancelled, payment failed
//	b4 Avanza created 11-01, 1 day,  500, completed, paid 11-01
func newReportFixture(t *testing.T) *reportFixture {
	db := newTestDB(t)
	f := &reportFixture{
		db:     db,
		svc:    NewReportService(db, newTestClock(), nil),
		renter: seedUser(t, db, models.RoleRenter),
		avanza: seedCar(t, db, "100"),
		jazz:   seedCar(t, db, "100"),
	}
	require.NoError(t, db.Model(f.jazz).Update("model", "Jazz").Error)

	rows := []struct {
		car     *models.Car
		created time.Time
		end     string
		price   int64
		status  models.BookingStatus
		payment models.PaymentStatus
		paidAt  time.Time
	}{
		{f.avanza, at("2025-01-05", 8), "2025-01-12", 100, models.BookingStatusPending, models.PaymentStatusPending, time.Time{}},
		{f.jazz, at("2025-01-03", 10), "2025-01-10", 200, models.BookingStatusConfirmed, models.PaymentStatusSuccess, at("2025-01-03", 11)},
		{f.jazz, at("2025-01-02", 10), "2025-01-11", 300, models.BookingStatusConfirmed, models.PaymentStatusSuccess, at("2025-01-04", 9)},
		{f.jazz, at("2024-12-20", 10), "2025-01-13", 400, models.BookingStatusCancelled, models.PaymentStatusFailed, at("2025-01-04", 9)},
		{f.avanza, at("2024-11-01", 10), "2025-01-10", 500, models.BookingStatusCompleted, models.PaymentStatusSuccess, at("2024-11-01", 12)},
	}
	for _, r := range rows {
		b := &models.Booking{
			UserID:     f.renter.ID,
			CarID:      r.car.ID,
			StartDate:  models.MustParseDate("2025-01-10"),
			EndDate:    models.MustParseDate(r.end),
			TotalPrice: decimal.NewFromInt(r.price),
			Status:     r.status,
			CreatedAt:  r.created,
		}
		require.NoError(t, db.Create(b).Error)
		p := &models.Payment{BookingID: b.ID, Amount: b.TotalPrice, PaymentMethod: "card", Status: r.payment}
		if !r.paidAt.IsZero() {
			paid := r.paidAt
			p.PaidAt = &paid
		}
		require.NoError(t, db.Create(p).Error)
		f.bookings = append(f.bookings, b)
	}
	return f
}

func TestDashboard(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Model(f.renter).UpdateColumn("created_at", at("2025-01-05", 7)).Error)
	older := seedUser(t, f.db, models.RoleRenter)
	require.NoError(t, f.db.Model(older).UpdateColumn("created_at", at("2025-01-04", 7)).Error)
	staff := seedUser(t, f.db, models.RoleCashier)
	require.NoError(t, f.db.Model(staff).UpdateColumn("created_at", at("2025-01-05", 7)).Error)

	d, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(100).Equal(d.KPIs.RevenueToday), "today %s", d.KPIs.RevenueToday)
	assert.True(t, decimal.NewFromInt(600).Equal(d.KPIs.RevenueMonth), "month %s", d.KPIs.RevenueMonth)
	assert.EqualValues(t, 1, d.KPIs.NewBookingsToday)
	assert.EqualValues(t, 1, d.KPIs.NewUsersToday)
	assert.EqualValues(t, 1, d.PendingBookings)

	require.Len(t, d.BookingTrend, 7)
	assert.Equal(t, "2024-12-30", d.BookingTrend[0].Date.String())
	assert.Equal(t, "2025-01-05", d.BookingTrend[6].Date.String())
	counts := make([]int64, len(d.BookingTrend))
	for i, p := range d.BookingTrend {
		counts[i] = p.Count
	}
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 0, 1}, counts)

	assert.Equal(t, []CarPopularity{{Model: "Jazz", BookingCount: 3}, {Model: "Avanza", BookingCount: 1}}, d.PopularCars)
}

func TestDashboardOnEmptyDatabase(t *testing.T) {
	svc := NewReportService(newTestDB(t), newTestClock(), nil)

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.True(t, d.KPIs.RevenueMonth.IsZero())
	assert.Len(t, d.BookingTrend, 7)
	assert.Empty(t, d.PopularCars)
	assert.NotNil(t, d.PopularCars)
}

func TestReportDefaultsToLastThirtyDays(t *testing.T) {
	f := newReportFixture(t)

	r, err := f.svc.Report(context.Background(), ReportFilter{})
	require.NoError(t, err)

	assert.Equal(t, "2024-12-07", r.Filters.StartDate.String())
	assert.Equal(t, "2025-01-05", r.Filters.EndDate.String())

	assert.True(t, decimal.NewFromInt(500).Equal(r.KPIs.TotalRevenue), "revenue %s", r.KPIs.TotalRevenue)
	assert.EqualValues(t, 4, r.KPIs.TotalBookings)
	// (100+200+300+400) / (3+1+2+4) days
	assert.True(t, decimal.NewFromInt(100).Equal(r.KPIs.AvgDailyRate), "rate %s", r.KPIs.AvgDailyRate)

	require.Len(t, r.RevenueByDay, 2)
	assert.Equal(t, "2025-01-03", r.RevenueByDay[0].Date.String())
	assert.True(t, decimal.NewFromInt(200).Equal(r.RevenueByDay[0].Total))
	assert.Equal(t, "2025-01-04", r.RevenueByDay[1].Date.String())
	assert.True(t, decimal.NewFromInt(300).Equal(r.RevenueByDay[1].Total))

	assert.Equal(t, map[models.BookingStatus]int64{
		models.BookingStatusPending:   1,
		models.BookingStatusConfirmed: 2,
		models.BookingStatusCancelled: 1,
	}, r.BookingsByStatus)

	assert.EqualValues(t, 4, r.Bookings.Total)
	require.NotEmpty(t, r.Bookings.Items)
	first := r.Bookings.Items[0]
	assert.Equal(t, f.bookings[0].ID, first.ID)
	require.NotNil(t, first.Car)
	require.NotNil(t, first.User)
	require.NotNil(t, first.Payment)
	assert.Equal(t, models.PaymentStatusPending, first.Payment.Status)
}

func TestReportWithExplicitRange(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	r, err := f.svc.Report(ctx, ReportFilter{StartDate: "2025-01-03", EndDate: "2025-01-05"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.KPIs.TotalBookings)
	assert.True(t, decimal.NewFromInt(500).Equal(r.KPIs.TotalRevenue))

	empty, err := f.svc.Report(ctx, ReportFilter{StartDate: "2023-01-01", EndDate: "2023-01-31"})
	require.NoError(t, err)
	assert.Zero(t, empty.KPIs.TotalBookings)
	assert.True(t, empty.KPIs.AvgDailyRate.IsZero())
	assert.Empty(t, empty.RevenueByDay)

	_, err = f.svc.Report(ctx, ReportFilter{StartDate: "2025-01-05", EndDate: "2025-01-01"})
	requireFieldError(t, err, "end_date")

	_, err = f.svc.Report(ctx, ReportFilter{StartDate: "yesterday"})
	requireFieldError(t, err, "start_date")
}

package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/database"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/clock/testclock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// "today" in every service test is 2025-01-05.
var testNow = time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

func newTestClock() *testclock.Clock {
	return testclock.NewClock(testNow)
}

var seq int

func seedUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	seq++
	user := &models.User{
		FullName:      fmt.Sprintf("User %d", seq),
		Email:         fmt.Sprintf("user%d@example.com", seq),
		Role:          role,
		RememberToken: fmt.Sprintf("remember-%d", seq),
	}
	require.NoError(t, user.SetPassword("secret123"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedCar(t *testing.T, db *gorm.DB, price string) *models.Car {
	t.Helper()
	seq++
	car := &models.Car{
		Brand:        "Toyota",
		Model:        "Avanza",
		Year:         2022,
		LicensePlate: fmt.Sprintf("B %04d XY", seq),
		PricePerDay:  decimal.RequireFromString(price),
		Features:     []string{"AC"},
		ImageURLs:    []string{"cars/a.jpg"},
		Status:       models.CarStatusAvailable,
	}
	require.NoError(t, db.Create(car).Error)
	return car
}

func seedBooking(t *testing.T, db *gorm.DB, user *models.User, car *models.Car, start, end string, status models.BookingStatus) *models.Booking {
	t.Helper()
	b := &models.Booking{
		UserID:     user.ID,
		CarID:      car.ID,
		StartDate:  models.MustParseDate(start),
		EndDate:    models.MustParseDate(end),
		TotalPrice: car.PricePerDay,
		Status:     status,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func carStatus(t *testing.T, db *gorm.DB, id uint) models.CarStatus {
	t.Helper()
	var car models.Car
	require.NoError(t, db.First(&car, id).Error)
	return car.Status
}

// recordingListener collects booking events.
type recordingListener struct {
	mu     sync.Mutex
	events []BookingEvent
}

func (r *recordingListener) BookingChanged(_ context.Context, e BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) Events() []BookingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BookingEvent(nil), r.events...)
}

// memoryFiles is an in-memory FileStore.
type memoryFiles struct {
	mu       sync.Mutex
	files    map[string][]byte
	n        int
	failNext bool
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{files: map[string][]byte{}}
}

func (m *memoryFiles) Store(_ context.Context, folder string, file Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return "", fmt.Errorf("disk full")
	}
	r, err := file.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.n++
	path := fmt.Sprintf("%s/%d.%s", folder, m.n, file.Ext())
	m.files[path] = data
	return path, nil
}

func (m *memoryFiles) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memoryFiles) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memoryFiles) URL(path string) string {
	return "https://files.test/" + path
}

func (m *memoryFiles) has(path string) bool {
	ok, _ := m.Exists(context.Background(), path)
	return ok
}

func (m *memoryFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func upload(name string, size int) Upload {
	data := bytes.Repeat([]byte("x"), size)
	return Upload{
		Filename: name,
		Size:     int64(size),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

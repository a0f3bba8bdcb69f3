package services

import (
	"context"
	"testing"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carInput(plate string) CarInput {
	return CarInput{
		Brand:        "Honda",
		Model:        "Jazz",
		Year:         2021,
		LicensePlate: plate,
		PricePerDay:  decimal.RequireFromString("350000"),
		Status:       models.CarStatusAvailable,
		Features:     []string{" GPS ", "AC", "GPS", ""},
	}
}

func newCarService(t *testing.T) (*CarService, *memoryFiles) {
	files := newMemoryFiles()
	return NewCarService(newTestDB(t), files, newTestClock(), nil), files
}

func TestCreateCar(t *testing.T) {
	svc, files := newCarService(t)
	ctx := context.Background()

	car, err := svc.Create(ctx, carInput("B 1 RC"), []Upload{upload("front.jpg", 100), upload("back.webp", 100)})
	require.NoError(t, err)
	assert.Equal(t, []string{"GPS", "AC"}, car.Features)
	require.Len(t, car.ImageURLs, 2)
	assert.Equal(t, 2, files.count())

	got, err := svc.Get(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, car.ImageURLs, got.ImageURLs)
	assert.True(t, car.PricePerDay.Equal(got.PricePerDay))
	assert.Equal(t, "Jazz", got.Model)
	assert.NotZero(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = svc.Create(ctx, carInput("B 1 RC"), []Upload{upload("front.jpg", 100)})
	requireFieldError(t, err, "license_plate")
	assert.Equal(t, 2, files.count(), "nothing stored for a rejected car")
}

func TestCreateCarValidation(t *testing.T) {
	svc, files := newCarService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, carInput("B 2 RC"), nil)
	requireFieldError(t, err, "image_files")

	_, err = svc.Create(ctx, carInput("B 2 RC"), []Upload{upload("doc.pdf", 10)})
	requireFieldError(t, err, "image_files")

	_, err = svc.Create(ctx, carInput("B 2 RC"), []Upload{upload("big.png", 2049*1024)})
	requireFieldError(t, err, "image_files")

	in := carInput("B 2 RC")
	in.Year = 2027
	in.Status = "sold"
	in.PricePerDay = decimal.NewFromInt(-1)
	in.Brand = ""
	_, err = svc.Create(ctx, in, []Upload{upload("a.png", 10)})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"year", "status", "price_per_day", "brand"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.Zero(t, files.count())
}

func TestDeletedCarKeepsPlateReserved(t *testing.T) {
	svc, _ := newCarService(t)
	ctx := context.Background()

	car, err := svc.Create(ctx, carInput("B 3 RC"), []Upload{upload("front.jpg", 100)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, car.ID))

	_, err = svc.Create(ctx, carInput("B 3 RC"), []Upload{upload("front.jpg", 100)})
	requireFieldError(t, err, "license_plate")
}

func TestUpdateCarImages(t *testing.T) {
	svc, files := newCarService(t)
	ctx := context.Background()

	car, err := svc.Create(ctx, carInput("B 3 RC"), []Upload{upload("a.jpg", 10), upload("b.jpg", 10)})
	require.NoError(t, err)
	removed := car.ImageURLs[0]
	kept := car.ImageURLs[1]

	in := carInput("B 3 RC")
	in.Status = models.CarStatusMaintenance
	in.Features = []string{"Bluetooth"}
	updated, err := svc.Update(ctx, car.ID, CarUpdate{
		CarInput:       in,
		ImagesToDelete: []string{removed},
		NewImages:      []Upload{upload("c.png", 10)},
	})
	require.NoError(t, err)
	require.Len(t, updated.ImageURLs, 2)
	assert.Equal(t, kept, updated.ImageURLs[0])
	assert.Equal(t, models.CarStatusMaintenance, updated.Status)
	assert.Equal(t, []string{"Bluetooth"}, updated.Features)
	assert.False(t, files.has(removed))
	assert.True(t, files.has(updated.ImageURLs[1]))

	other, err := svc.Create(ctx, carInput("B 4 RC"), []Upload{upload("d.jpg", 10)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, other.ID, CarUpdate{CarInput: carInput("B 3 RC")})
	requireFieldError(t, err, "license_plate")

	_, err = svc.Update(ctx, 999, CarUpdate{CarInput: carInput("B 9 RC")})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestDeleteCarRemovesImages(t *testing.T) {
	svc, files := newCarService(t)
	ctx := context.Background()

	car, err := svc.Create(ctx, carInput("B 5 RC"), []Upload{upload("a.jpg", 10)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, car.ID))
	assert.Zero(t, files.count())

	_, err = svc.Get(ctx, car.ID)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestBulkUpdateCarStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewCarService(db, newMemoryFiles(), newTestClock(), nil)
	ctx := context.Background()
	a := seedCar(t, db, "100")
	b := seedCar(t, db, "200")

	n, err := svc.BulkUpdateStatus(ctx, []uint{a.ID, b.ID}, models.CarStatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.CarStatusMaintenance, carStatus(t, db, a.ID))

	_, err = svc.BulkUpdateStatus(ctx, []uint{a.ID}, models.CarStatusRented)
	requireFieldError(t, err, "status")

	_, err = svc.BulkUpdateStatus(ctx, []uint{a.ID, 77}, models.CarStatusAvailable)
	requireFieldError(t, err, "ids")
	assert.Equal(t, models.CarStatusMaintenance, carStatus(t, db, a.ID))
}

func TestListCars(t *testing.T) {
	svc, _ := newCarService(t)
	ctx := context.Background()

	in := carInput("B 10 RC")
	in.Brand = "Toyota"
	in.Features = []string{"AC", "GPS"}
	_, err := svc.Create(ctx, in, []Upload{upload("a.jpg", 10)})
	require.NoError(t, err)

	in = carInput("B 11 RC")
	in.Year = 2015
	in.PricePerDay = decimal.NewFromInt(150000)
	in.Features = []string{"AC"}
	in.Status = models.CarStatusMaintenance
	_, err = svc.Create(ctx, in, []Upload{upload("b.jpg", 10)})
	require.NoError(t, err)

	all, err := svc.List(ctx, CarFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)

	gps, err := svc.List(ctx, CarFilter{Features: []string{"GPS"}})
	require.NoError(t, err)
	require.Len(t, gps.Items, 1)
	assert.Equal(t, "Toyota", gps.Items[0].Brand)

	old, err := svc.List(ctx, CarFilter{YearTo: 2016})
	require.NoError(t, err)
	assert.Len(t, old.Items, 1)

	from := decimal.NewFromInt(200000)
	pricey, err := svc.List(ctx, CarFilter{PriceFrom: &from})
	require.NoError(t, err)
	assert.Len(t, pricey.Items, 1)

	search, err := svc.List(ctx, CarFilter{Search: "B 11"})
	require.NoError(t, err)
	assert.Len(t, search.Items, 1)

	brands, err := svc.Brands(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Honda", "Toyota"}, brands)

	available, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "Toyota", available[0].Brand)
}

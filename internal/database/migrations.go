package database

import (
	"github.com/chachabrian/rentcar-backend/internal/models"
	"gorm.io/gorm"
)

// bookingExclusion rejects two non-cancelled bookings of one car whose
// inclusive day ranges intersect, closing the window between the overlap
// check and the insert.
var bookingExclusion = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_no_overlap`,
	`ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap EXCLUDE USING gist (car_id WITH =, daterange(start_date, end_date, '[]') WITH &&) WHERE (status <> 'cancelled')`,
}

var statusChecks = []string{
	`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_status_check`,
	`ALTER TABLE bookings ADD CONSTRAINT bookings_status_check CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled'))`,
	`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_dates_check`,
	`ALTER TABLE bookings ADD CONSTRAINT bookings_dates_check CHECK (end_date >= start_date)`,
	`ALTER TABLE cars DROP CONSTRAINT IF EXISTS cars_status_check`,
	`ALTER TABLE cars ADD CONSTRAINT cars_status_check CHECK (status IN ('available', 'rented', 'maintenance'))`,
	`ALTER TABLE documents DROP CONSTRAINT IF EXISTS documents_status_check`,
	`ALTER TABLE documents ADD CONSTRAINT documents_status_check CHECK (status IN ('pending', 'approved', 'rejected'))`,
	`ALTER TABLE promotions DROP CONSTRAINT IF EXISTS promotions_type_check`,
	`ALTER TABLE promotions ADD CONSTRAINT promotions_type_check CHECK (type IN ('fixed', 'percentage'))`,
	`ALTER TABLE promotions DROP CONSTRAINT IF EXISTS promotions_validity_check`,
	`ALTER TABLE promotions ADD CONSTRAINT promotions_validity_check CHECK (valid_to IS NULL OR valid_from IS NULL OR valid_to >= valid_from)`,
}

// RunMigrations creates or updates the schema. The PostgreSQL-only
// constraints are skipped on other dialects.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Car{},
		&models.Booking{},
		&models.Payment{},
		&models.Setting{},
		&models.SettingChange{},
		&models.Document{},
		&models.Promotion{},
	)
	if err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return applyPostgresConstraints(db)
}

func applyPostgresConstraints(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range append(statusChecks, bookingExclusion...) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

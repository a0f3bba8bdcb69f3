package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CarStatus string

const (
	CarStatusAvailable   CarStatus = "available"
	CarStatusRented      CarStatus = "rented"
	CarStatusMaintenance CarStatus = "maintenance"
)

// Valid reports whether s is a known car status.
func (s CarStatus) Valid() bool {
	switch s {
	case CarStatusAvailable, CarStatusRented, CarStatusMaintenance:
		return true
	}
	return false
}

// Car declares its own key and timestamps; gorm.Model would clash with the
// Model column.
type Car struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	Brand        string          `json:"brand" gorm:"size:50;not null"`
	Model        string          `json:"model" gorm:"size:50;not null"`
	Year         int             `json:"year" gorm:"not null"`
	LicensePlate string          `json:"licensePlate" gorm:"size:15;uniqueIndex;not null"`
	PricePerDay  decimal.Decimal `json:"pricePerDay" gorm:"type:decimal(10,2);not null"`
	Description  string          `json:"description"`
	Features     []string        `json:"features" gorm:"type:text;serializer:json"`
	ImageURLs    []string        `json:"imageUrls" gorm:"column:image_urls;type:text;serializer:json"`
	Status       CarStatus       `json:"status" gorm:"size:20;not null;default:'available'"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`
}

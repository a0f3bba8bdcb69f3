package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the four booking states.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// ReleasesCar reports whether moving a booking into s frees its car.
func (s BookingStatus) ReleasesCar() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Booking is hard-deleted, so it carries its own timestamps instead of
// gorm.Model's soft-delete column.
type Booking struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	UserID     uint            `json:"userId" gorm:"not null;index"`
	User       *User           `json:"user,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CarID      uint            `json:"carId" gorm:"not null;index"`
	Car        *Car            `json:"car,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	StartDate  Date            `json:"startDate" gorm:"not null;index"`
	EndDate    Date            `json:"endDate" gorm:"not null;index"`
	TotalPrice decimal.Decimal `json:"totalPrice" gorm:"type:decimal(12,2);not null"`
	Status     BookingStatus   `json:"status" gorm:"size:20;not null;default:'pending';index"`
	Payment    *Payment        `json:"payment,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Overlaps applies the inclusive-day intersection test.
func (b *Booking) Overlaps(start, end Date) bool {
	return !b.StartDate.After(end) && !b.EndDate.Before(start)
}

package services

import (
	"context"

	"github.com/chachabrian/rentcar-backend/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingDeleted       = "booking_deleted"
)

// BookingEvent describes a committed change to a booking.
type BookingEvent struct {
	Type      string               `json:"type"`
	BookingID uint                 `json:"booking_id"`
	UserID    uint                 `json:"user_id"`
	CarID     uint                 `json:"car_id"`
	Status    models.BookingStatus `json:"status"`
}

func newBookingEvent(kind string, b *models.Booking) BookingEvent {
	return BookingEvent{
		Type:      kind,
		BookingID: b.ID,
		UserID:    b.UserID,
		CarID:     b.CarID,
		Status:    b.Status,
	}
}

// BookingListener is told about booking changes after they commit.
// Implementations must not block.
type BookingListener interface {
	BookingChanged(ctx context.Context, event BookingEvent)
}

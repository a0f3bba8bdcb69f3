package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

type Payment struct {
	gorm.Model
	BookingID     uint            `json:"bookingId" gorm:"not null;uniqueIndex"`
	Booking       *Booking        `json:"booking,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentMethod string          `json:"paymentMethod" gorm:"size:50;not null"`
	Status        PaymentStatus   `json:"status" gorm:"size:20;not null;default:'pending'"`
	TransactionID string          `json:"transactionId" gorm:"size:100"`
	PaidAt        *time.Time      `json:"paidAt"`
}

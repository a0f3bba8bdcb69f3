package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotionType string

const (
	PromotionTypeFixed      PromotionType = "fixed"
	PromotionTypePercentage PromotionType = "percentage"
)

// Promotion is a promo code. A nil bound leaves that side of the validity
// window open.
type Promotion struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Code      string          `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Type      PromotionType   `json:"type" gorm:"size:20;not null"`
	Value     decimal.Decimal `json:"value" gorm:"type:decimal(10,2);not null"`
	ValidFrom *Date           `json:"validFrom"`
	ValidTo   *Date           `json:"validTo"`
	IsActive  bool            `json:"isActive" gorm:"not null"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ActiveOn reports whether the code can be redeemed on day.
func (p *Promotion) ActiveOn(day Date) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidFrom != nil && day.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && day.After(*p.ValidTo) {
		return false
	}
	return true
}

package models

import "time"

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

// Document is an identity document a renter submits for verification.
type Document struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	UserID          uint           `json:"userId" gorm:"not null;index"`
	User            *User          `json:"user,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Type            string         `json:"type" gorm:"size:50;not null"`
	FilePath        string         `json:"filePath" gorm:"not null"`
	Status          DocumentStatus `json:"status" gorm:"size:20;not null;default:'pending';index"`
	RejectionReason *string        `json:"rejectionReason"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

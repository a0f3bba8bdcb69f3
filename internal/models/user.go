package models

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleRenter  Role = "renter"
	RoleCashier Role = "cashier"
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
)

type User struct {
	gorm.Model
	FullName      string `json:"fullName" gorm:"size:100;not null"`
	Email         string `json:"email" gorm:"size:100;uniqueIndex;not null"`
	PasswordHash  string `json:"-" gorm:"column:password;not null"`
	PhoneNumber   string `json:"phoneNumber" gorm:"size:20"`
	Address       string `json:"address"`
	Role          Role   `json:"role" gorm:"size:20;not null;default:'renter'"`
	RememberToken string `json:"-" gorm:"size:100"`
	FCMToken      string `json:"-" gorm:"column:fcm_token"`
	IsVerified    bool   `json:"isVerified" gorm:"not null;default:false"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// SessionFingerprint identifies the current remember token without exposing
// it. Tokens carrying a stale fingerprint belong to a rotated session.
func (u *User) SessionFingerprint() string {
	sum := sha256.Sum256([]byte(u.RememberToken))
	return hex.EncodeToString(sum[:8])
}

// HasRole reports whether the user holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

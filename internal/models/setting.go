package models

import (
	"encoding/json"
	"strconv"
	"time"
)

type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeInteger SettingType = "integer"
	SettingTypeFloat   SettingType = "float"
	SettingTypeJSON    SettingType = "json"
)

// SecretMask replaces the value of every secret setting on read.
const SecretMask = "*****"

// Setting is a typed key/value configuration entry. Value always holds the
// stored representation; for secrets that is ciphertext.
type Setting struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	Key         string      `json:"key" gorm:"size:100;uniqueIndex;not null"`
	Value       *string     `json:"-"`
	Type        SettingType `json:"type" gorm:"size:20;not null;default:'string'"`
	Group       string      `json:"group" gorm:"size:50;index"`
	IsSecret    bool        `json:"isSecret" gorm:"not null;default:false"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// TypedValue decodes the stored value according to Type. Secrets never
// expose their stored value: a non-empty secret reads as SecretMask.
func (s *Setting) TypedValue() interface{} {
	if s.IsSecret {
		if s.Value == nil || *s.Value == "" {
			return nil
		}
		return SecretMask
	}
	if s.Value == nil {
		return nil
	}
	raw := *s.Value

	switch s.Type {
	case SettingTypeJSON:
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil || decoded == nil {
			return raw
		}
		return decoded
	case SettingTypeBoolean:
		return raw == "1" || raw == "true"
	case SettingTypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return int64(0)
		}
		return n
	case SettingTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return float64(0)
		}
		return f
	default:
		return raw
	}
}

// SettingChange is one append-only audit row.
type SettingChange struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SettingKey string    `json:"settingKey" gorm:"size:100;not null;index"`
	OldValue   *string   `json:"oldValue" gorm:"type:text"`
	NewValue   *string   `json:"newValue" gorm:"type:text"`
	ChangedBy  *uint     `json:"changedBy" gorm:"index"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (SettingChange) TableName() string {
	return "settings_changes"
}

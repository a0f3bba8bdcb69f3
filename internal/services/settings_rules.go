package services

import (
	"strings"
)

const (
	GroupGeneral       = "general"
	GroupNotifications = "notifications"
	GroupPayment       = "payment"
	GroupPricing       = "pricing"
	GroupFleet         = "fleet"
	GroupSecurity      = "security"
)

type groupRule struct {
	group   string
	matches func(key string) bool
}

func hasPrefix(prefix string) func(string) bool {
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}

func contains(sub string) func(string) bool {
	return func(key string) bool { return strings.Contains(key, sub) }
}

func oneOf(keys ...string) func(string) bool {
	return func(key string) bool {
		for _, k := range keys {
			if key == k {
				return true
			}
		}
		return false
	}
}

func either(preds ...func(string) bool) func(string) bool {
	return func(key string) bool {
		for _, p := range preds {
			if p(key) {
				return true
			}
		}
		return false
	}
}

// groupRules is evaluated top to bottom; every matching rule overrides the
// group chosen by the rules above it.
var groupRules = []groupRule{
	{GroupNotifications, hasPrefix("smtp_")},
	{GroupPayment, either(hasPrefix("stripe_"), contains("midtrans"), oneOf("payment_methods"))},
	{GroupPricing, either(hasPrefix("tax"), contains("fee"))},
	{GroupFleet, either(contains("car"), contains("fleet"))},
	{GroupNotifications, contains("notification")},
	{GroupSecurity, oneOf("maintenance_mode", "session_timeout", "admin_ip_whitelist")},
}

// ClassifyGroup returns the settings group of key.
func ClassifyGroup(key string) string {
	lower := strings.ToLower(key)
	group := GroupGeneral
	for _, rule := range groupRules {
		if rule.matches(lower) {
			group = rule.group
		}
	}
	return group
}

var secretSuffixes = []string{"secret", "api_key", "api-key", "token", "password", "pass", "key"}

// IsSecretKey reports whether the value of key must be encrypted at rest and
// masked on read.
func IsSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindInt
	kindFloat
	kindStringList
)

// settingField declares one accepted settings input and its constraints.
type settingField struct {
	kind      fieldKind
	maxLen    int
	min, max  *float64
	enum      []string
	gteField  string
	isFile    bool
	fileTypes []string
	maxKB     int64
}

func bound(v float64) *float64 { return &v }

// settingFields is the allow-list of keys accepted by SettingsStore.Update.
var settingFields = map[string]settingField{
	// General
	"site_name":        {kind: kindString, maxLen: 255},
	"maintenance_mode": {kind: kindBool},
	"logo":             {isFile: true, fileTypes: []string{"png", "jpg", "jpeg", "webp"}, maxKB: 1024},
	"favicon":          {isFile: true, fileTypes: []string{"ico", "png"}, maxKB: 256},

	// Booking
	"min_rental_days":      {kind: kindInt, min: bound(1)},
	"max_rental_days":      {kind: kindInt, gteField: "min_rental_days"},
	"booking_buffer_hours": {kind: kindInt, min: bound(0)},
	"auto_confirm_payment": {kind: kindBool},

	// Pricing & fees
	"tax_percent":       {kind: kindFloat, min: bound(0), max: bound(100)},
	"service_fee_type":  {kind: kindString, enum: []string{"fixed", "percentage"}},
	"service_fee_value": {kind: kindFloat, min: bound(0)},

	// Payment
	"payment_methods":     {kind: kindStringList},
	"stripe_secret_key":   {kind: kindString},
	"midtrans_server_key": {kind: kindString},

	// Notifications
	"smtp_host": {kind: kindString},
	"smtp_port": {kind: kindInt},
	"smtp_user": {kind: kindString},
	"smtp_pass": {kind: kindString},

	// Fleet
	"default_car_placeholder": {isFile: true, fileTypes: []string{"png", "jpg", "jpeg", "webp"}, maxKB: 2048},

	// Security
	"session_timeout":    {kind: kindInt, min: bound(1)},
	"admin_ip_whitelist": {kind: kindString},
}

// settingFileKeys are processed before scalar keys, in this order.
var settingFileKeys = []string{"logo", "favicon", "default_car_placeholder"}

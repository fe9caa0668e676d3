package domain

import (
	"strings"
	"time"
)

// SubscriptionStatus is the billing state of a tenant.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionFreeTrial SubscriptionStatus = "FREE_TRIAL"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// AllowsIssuance reports whether new warranties may be issued under this status.
func (s SubscriptionStatus) AllowsIssuance() bool {
	return s == SubscriptionActive || s == SubscriptionFreeTrial
}

// Category tags the kind of devices a shop repairs.
type Category string

const (
	CategoryGeneral Category = "GENERAL"
	CategoryMobile  Category = "MOBILE"
	CategoryTV      Category = "TV"
	CategoryMotor   Category = "MOTOR"
)

// ParseCategory normalises a free-form category tag. Empty input yields "".
func ParseCategory(raw string) Category {
	return Category(strings.ToUpper(strings.TrimSpace(raw)))
}

// Tenant is one isolated shop account.
type Tenant struct {
	ID                 string
	Name               string
	Verified           bool
	SubscriptionStatus SubscriptionStatus
	SubscriptionEndsAt *time.Time
	Category           Category
	PINHash            *string
	Timezone           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasPIN reports whether an access PIN has been configured.
func (t Tenant) HasPIN() bool {
	return t.PINHash != nil && *t.PINHash != ""
}

// SubscriptionLapsed reports whether the subscription end date has passed.
func (t Tenant) SubscriptionLapsed(now time.Time) bool {
	return t.SubscriptionEndsAt != nil && now.After(*t.SubscriptionEndsAt)
}

// Location resolves the tenant time zone, falling back when unset or unknown.
func (t Tenant) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if strings.TrimSpace(t.Timezone) == "" {
		return fallback
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

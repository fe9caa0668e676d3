package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WarrantyStatus is the stored status of a warranty certificate.
type WarrantyStatus string

const (
	WarrantyActive  WarrantyStatus = "ACTIVE"
	WarrantyExpired WarrantyStatus = "EXPIRED"
	WarrantyClaimed WarrantyStatus = "CLAIMED"
	WarrantyVoid    WarrantyStatus = "VOID"
)

// Valid reports whether s is one of the known statuses.
func (s WarrantyStatus) Valid() bool {
	switch s {
	case WarrantyActive, WarrantyExpired, WarrantyClaimed, WarrantyVoid:
		return true
	}
	return false
}

// ParseWarrantyStatus validates a status supplied by a caller.
func ParseWarrantyStatus(raw string) (WarrantyStatus, error) {
	s := WarrantyStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Validationf("unknown warranty status %q", raw)
	}
	return s, nil
}

// Warranty is a certificate issued to a customer for a completed repair.
type Warranty struct {
	ID           string
	TenantID     string
	ShortCode    string
	Customer     Customer
	DeviceModel  string
	RepairType   string
	RepairCost   *decimal.Decimal
	DurationDays int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Status       WarrantyStatus
	PrivateNote  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayStatus derives the status shown to users. An ACTIVE warranty past its
// expiry reads as EXPIRED; the stored value is never changed.
func (w Warranty) DisplayStatus(now time.Time) WarrantyStatus {
	if w.Status == WarrantyActive && now.After(w.ExpiresAt) {
		return WarrantyExpired
	}
	return w.Status
}

// WarrantyExpiry computes expires-at from the issue time and duration.
func WarrantyExpiry(issuedAt time.Time, durationDays int) time.Time {
	return issuedAt.AddDate(0, 0, durationDays)
}

// NewWarranty carries the operator input for issuing a warranty.
type NewWarranty struct {
	Customer     Customer         `json:"customer" validate:"required"`
	DeviceModel  string           `json:"deviceModel" validate:"required,max=120"`
	RepairType   string           `json:"repairType" validate:"required,max=120"`
	RepairCost   *decimal.Decimal `json:"repairCost,omitempty"`
	DurationDays int              `json:"durationDays" validate:"gte=1,lte=3650"`
	PrivateNote  *string          `json:"privateNote,omitempty" validate:"omitempty,max=1000"`
}

// Check validates the input beyond struct tags.
func (in NewWarranty) Check() error {
	if err := Validate(in); err != nil {
		return err
	}
	if in.RepairCost != nil {
		return requireMoney("repairCost", *in.RepairCost)
	}
	return nil
}

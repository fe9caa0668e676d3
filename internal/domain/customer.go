package domain

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when no region is configured.
const DefaultPhoneRegion = "IN"

// Customer identifies the person a warranty or job belongs to.
type Customer struct {
	Name    string  `json:"name" validate:"required,max=120"`
	Phone   string  `json:"phone" validate:"required,max=32"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// NormalizePhone formats phone as E.164 using region for numbers without a
// country prefix.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", Validationf("phone is required")
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := libphonenumber.Parse(phone, strings.ToUpper(region))
	if err != nil {
		return "", Validationf("phone %q: %v", phone, err)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// Normalize trims fields and normalises the phone number.
func (c Customer) Normalize(region string) (Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	phone, err := NormalizePhone(c.Phone, region)
	if err != nil {
		return c, err
	}
	c.Phone = phone
	if c.Address != nil {
		addr := strings.TrimSpace(*c.Address)
		if addr == "" {
			c.Address = nil
		} else {
			c.Address = &addr
		}
	}
	return c, nil
}

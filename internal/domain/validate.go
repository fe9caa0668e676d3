package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Validate checks struct tags on v and converts failures into ErrValidation.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s:%s", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(fields)
	return Validationf("%s", strings.Join(fields, ", "))
}

// MoneyPlaces is the number of decimal places money columns store.
const MoneyPlaces = 2

func requireMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return Validationf("%s must not be negative", field)
	}
	return requireMoneyScale(field, d)
}

func requireMoneyScale(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(MoneyPlaces)) {
		return Validationf("%s has more than %d decimal places", field, MoneyPlaces)
	}
	return nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one append-only ledger entry against a job sheet.
type Payment struct {
	ID        string
	JobID     string
	Amount    decimal.Decimal
	PaidAt    time.Time
	Note      *string
	CreatedAt time.Time
}

// SumPayments totals ledger amounts.
func SumPayments(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// NewPayment is an operator-entered payment against a job.
type NewPayment struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt time.Time       `json:"paidAt"`
	Note   *string         `json:"note,omitempty" validate:"omitempty,max=500"`
}

// Check validates the payment. The amount is not bounded by the job's estimate.
func (in NewPayment) Check() error {
	if err := Validate(in); err != nil {
		return err
	}
	if !in.Amount.IsPositive() {
		return Validationf("amount must be positive")
	}
	return requireMoneyScale("amount", in.Amount)
}

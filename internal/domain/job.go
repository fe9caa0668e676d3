package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus is a job sheet's position in the repair workflow.
type JobStatus string

const (
	JobReceived   JobStatus = "RECEIVED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobReady      JobStatus = "READY"
	JobDelivered  JobStatus = "DELIVERED"
	JobCancelled  JobStatus = "CANCELLED"
)

// JobStatuses lists every status in workflow order.
var JobStatuses = []JobStatus{JobReceived, JobInProgress, JobReady, JobDelivered, JobCancelled}

// jobTransitions lists the permitted edges. Operators may correct mistakes in
// any direction, so every edge is open, terminal states included.
var jobTransitions = func() map[JobStatus]map[JobStatus]bool {
	t := make(map[JobStatus]map[JobStatus]bool, len(JobStatuses))
	for _, from := range JobStatuses {
		t[from] = make(map[JobStatus]bool, len(JobStatuses))
		for _, to := range JobStatuses {
			t[from][to] = true
		}
	}
	return t
}()

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// IsTerminal reports whether s ends the workflow.
func (s JobStatus) IsTerminal() bool {
	return s == JobDelivered || s == JobCancelled
}

// CanTransitionTo reports whether the table permits s -> next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return jobTransitions[s][next]
}

// ParseJobStatus validates a status supplied by a caller.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Validationf("unknown job status %q", raw)
	}
	return s, nil
}

// JobSheet is a repair job taken in at the counter.
type JobSheet struct {
	ID            string
	TenantID      string
	JobCode       string
	Customer      Customer
	Category      Category
	DeviceBrand   *string
	DeviceModel   *string
	Technical     TechnicalPayload
	Problem       string
	Accessories   *string
	Status        JobStatus
	ReceivedAt    time.Time
	ExpectedAt    *time.Time
	EstimatedCost decimal.Decimal
	Advance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Balance is the amount still owed.
func (j JobSheet) Balance() decimal.Decimal {
	return j.EstimatedCost.Sub(j.Advance)
}

// NewJobSheet carries intake input for a job.
type NewJobSheet struct {
	Customer      Customer        `json:"customer" validate:"required"`
	Category      Category        `json:"category,omitempty"`
	DeviceBrand   *string         `json:"deviceBrand,omitempty" validate:"omitempty,max=120"`
	DeviceModel   *string         `json:"deviceModel,omitempty" validate:"omitempty,max=120"`
	Technical     []byte          `json:"-"`
	Problem       string          `json:"problem" validate:"required,max=2000"`
	Accessories   *string         `json:"accessories,omitempty" validate:"omitempty,max=500"`
	EstimatedCost decimal.Decimal `json:"estimatedCost"`
	Advance       decimal.Decimal `json:"advance"`
	ExpectedAt    *time.Time      `json:"expectedAt,omitempty"`
}

// Check validates intake input.
func (in NewJobSheet) Check() error {
	if err := Validate(in); err != nil {
		return err
	}
	return checkAmounts(in.EstimatedCost, in.Advance)
}

// JobDetails is the full set of mutable job fields; an update overwrites all of them.
type JobDetails struct {
	Customer      Customer        `json:"customer" validate:"required"`
	DeviceBrand   *string         `json:"deviceBrand,omitempty" validate:"omitempty,max=120"`
	DeviceModel   *string         `json:"deviceModel,omitempty" validate:"omitempty,max=120"`
	Technical     []byte          `json:"-"`
	Problem       string          `json:"problem" validate:"required,max=2000"`
	Accessories   *string         `json:"accessories,omitempty" validate:"omitempty,max=500"`
	EstimatedCost decimal.Decimal `json:"estimatedCost"`
	Advance       decimal.Decimal `json:"advance"`
	ExpectedAt    *time.Time      `json:"expectedAt,omitempty"`
}

// Check validates edit input. The advance may never exceed the estimate here.
func (in JobDetails) Check() error {
	if err := Validate(in); err != nil {
		return err
	}
	return checkAmounts(in.EstimatedCost, in.Advance)
}

func checkAmounts(estimate, advance decimal.Decimal) error {
	if err := requireMoney("estimatedCost", estimate); err != nil {
		return err
	}
	if err := requireMoney("advance", advance); err != nil {
		return err
	}
	if advance.GreaterThan(estimate) {
		return Validationf("advance %s exceeds estimated cost %s", advance, estimate)
	}
	return nil
}

package httpserver

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

type warrantyView struct {
	ID            string                `json:"id"`
	ShortCode     string                `json:"shortCode"`
	Customer      domain.Customer       `json:"customer"`
	DeviceModel   string                `json:"deviceModel"`
	RepairType    string                `json:"repairType"`
	RepairCost    *decimal.Decimal      `json:"repairCost"`
	DurationDays  int                   `json:"durationDays"`
	IssuedAt      time.Time             `json:"issuedAt"`
	ExpiresAt     time.Time             `json:"expiresAt"`
	Status        domain.WarrantyStatus `json:"status"`
	DisplayStatus domain.WarrantyStatus `json:"displayStatus"`
	PrivateNote   *string               `json:"privateNote,omitempty"`
}

func newWarrantyView(w domain.Warranty, display domain.WarrantyStatus) warrantyView {
	return warrantyView{
		ID:            w.ID,
		ShortCode:     w.ShortCode,
		Customer:      w.Customer,
		DeviceModel:   w.DeviceModel,
		RepairType:    w.RepairType,
		RepairCost:    w.RepairCost,
		DurationDays:  w.DurationDays,
		IssuedAt:      w.IssuedAt,
		ExpiresAt:     w.ExpiresAt,
		Status:        w.Status,
		DisplayStatus: display,
		PrivateNote:   w.PrivateNote,
	}
}

// publicWarrantyView is what anyone holding the short code may see.
type publicWarrantyView struct {
	ShortCode     string                `json:"shortCode"`
	CustomerName  string                `json:"customerName"`
	DeviceModel   string                `json:"deviceModel"`
	RepairType    string                `json:"repairType"`
	IssuedAt      time.Time             `json:"issuedAt"`
	ExpiresAt     time.Time             `json:"expiresAt"`
	DisplayStatus domain.WarrantyStatus `json:"displayStatus"`
}

type jobView struct {
	ID               string           `json:"id"`
	JobCode          string           `json:"jobCode"`
	Customer         domain.Customer  `json:"customer"`
	Category         domain.Category  `json:"category"`
	DeviceBrand      *string          `json:"deviceBrand,omitempty"`
	DeviceModel      *string          `json:"deviceModel,omitempty"`
	TechnicalDetails json.RawMessage  `json:"technicalDetails,omitempty"`
	Problem          string           `json:"problem"`
	Accessories      *string          `json:"accessories,omitempty"`
	Status           domain.JobStatus `json:"status"`
	ReceivedAt       time.Time        `json:"receivedAt"`
	ExpectedAt       *time.Time       `json:"expectedAt,omitempty"`
	EstimatedCost    decimal.Decimal  `json:"estimatedCost"`
	Advance          decimal.Decimal  `json:"advance"`
	Balance          decimal.Decimal  `json:"balance"`
	Payments         []paymentView    `json:"payments,omitempty"`
}

func newJobView(j domain.JobSheet) (jobView, error) {
	technical, err := domain.EncodeTechnicalPayload(j.Technical)
	if err != nil {
		return jobView{}, err
	}
	return jobView{
		ID:               j.ID,
		JobCode:          j.JobCode,
		Customer:         j.Customer,
		Category:         j.Category,
		DeviceBrand:      j.DeviceBrand,
		DeviceModel:      j.DeviceModel,
		TechnicalDetails: technical,
		Problem:          j.Problem,
		Accessories:      j.Accessories,
		Status:           j.Status,
		ReceivedAt:       j.ReceivedAt,
		ExpectedAt:       j.ExpectedAt,
		EstimatedCost:    j.EstimatedCost,
		Advance:          j.Advance,
		Balance:          j.Balance(),
	}, nil
}

type paymentView struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	PaidAt time.Time       `json:"paidAt"`
	Note   *string         `json:"note,omitempty"`
}

func newPaymentViews(payments []domain.Payment) []paymentView {
	out := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentView{ID: p.ID, Amount: p.Amount, PaidAt: p.PaidAt, Note: p.Note})
	}
	return out
}

// jobRequest is the body of job create and update calls.
type jobRequest struct {
	domain.JobDetails
	Category         domain.Category `json:"category,omitempty"`
	TechnicalDetails json.RawMessage `json:"technicalDetails,omitempty"`
}

func (r jobRequest) details() domain.JobDetails {
	d := r.JobDetails
	d.Technical = r.TechnicalDetails
	return d
}

func (r jobRequest) intake() domain.NewJobSheet {
	return domain.NewJobSheet{
		Customer:      r.Customer,
		Category:      r.Category,
		DeviceBrand:   r.DeviceBrand,
		DeviceModel:   r.DeviceModel,
		Technical:     r.TechnicalDetails,
		Problem:       r.Problem,
		Accessories:   r.Accessories,
		EstimatedCost: r.EstimatedCost,
		Advance:       r.Advance,
		ExpectedAt:    r.ExpectedAt,
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

type pinRequest struct {
	PIN    string `json:"pin"`
	OldPIN string `json:"oldPin"`
	NewPIN string `json:"newPin"`
}

package wa

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

func TestRecipientJID(t *testing.T) {
	jid, err := RecipientJID("+91 98765-43210")
	if err != nil {
		t.Fatalf("RecipientJID() error = %v", err)
	}
	if jid.User != "919876543210" || jid.Server != "s.whatsapp.net" {
		t.Fatalf("jid = %s", jid)
	}
	if _, err := RecipientJID("12"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short number: expected ErrValidation, got %v", err)
	}
}

func TestJobStatusText(t *testing.T) {
	model := "Redmi Note 9"
	job := domain.JobSheet{
		JobCode:       "JO-0042",
		Customer:      domain.Customer{Name: "Asha"},
		DeviceModel:   &model,
		Status:        domain.JobReady,
		EstimatedCost: decimal.NewFromInt(1200),
		Advance:       decimal.NewFromInt(500),
	}
	tenant := domain.Tenant{Name: "City Mobile Care"}

	ready := JobStatusText(tenant, job)
	for _, want := range []string{"Asha", "Redmi Note 9", "JO-0042", "ready for pickup", "700.00", "City Mobile Care"} {
		if !strings.Contains(ready, want) {
			t.Errorf("ready text %q missing %q", ready, want)
		}
	}

	job.Status = domain.JobDelivered
	job.Advance = job.EstimatedCost
	delivered := JobStatusText(tenant, job)
	if !strings.Contains(delivered, "delivered") || strings.Contains(delivered, "Balance") {
		t.Errorf("delivered text = %q", delivered)
	}

	job.Status = domain.JobInProgress
	job.DeviceModel = nil
	if got := JobStatusText(domain.Tenant{}, job); !strings.Contains(got, "your device (job JO-0042) is now in progress.") {
		t.Errorf("in-progress text = %q", got)
	}
}

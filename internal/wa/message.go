package wa

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"fixshop/internal/domain"
)

// RecipientJID maps an E.164 phone number to a WhatsApp user JID.
func RecipientJID(phone string) (types.JID, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 {
		return types.JID{}, domain.Validationf("phone %q is not a dialable number", phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// JobStatusText is the customer-facing message for a job status.
func JobStatusText(tenant domain.Tenant, job domain.JobSheet) string {
	device := "device"
	if job.DeviceModel != nil && strings.TrimSpace(*job.DeviceModel) != "" {
		device = strings.TrimSpace(*job.DeviceModel)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s, ", job.Customer.Name)
	switch job.Status {
	case domain.JobReady:
		fmt.Fprintf(&b, "your %s (job %s) is ready for pickup.", device, job.JobCode)
		if bal := job.Balance(); bal.IsPositive() {
			fmt.Fprintf(&b, " Balance due: %s.", bal.StringFixed(2))
		}
	case domain.JobDelivered:
		fmt.Fprintf(&b, "your %s (job %s) has been delivered. Thank you!", device, job.JobCode)
	default:
		fmt.Fprintf(&b, "your %s (job %s) is now %s.", device, job.JobCode, strings.ReplaceAll(strings.ToLower(string(job.Status)), "_", " "))
	}
	if tenant.Name != "" {
		fmt.Fprintf(&b, "\n- %s", tenant.Name)
	}
	return b.String()
}

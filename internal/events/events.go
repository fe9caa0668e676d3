// Package events publishes domain events in a versioned envelope.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventWarrantyIssued        = "WarrantyIssued"
	EventWarrantyStatusChanged = "WarrantyStatusChanged"
	EventJobCreated            = "JobCreated"
	EventJobStatusChanged      = "JobStatusChanged"
	EventJobDetailsUpdated     = "JobDetailsUpdated"
	EventJobDeleted            = "JobDeleted"
	EventPaymentRecorded       = "PaymentRecorded"
	EventPaymentDeleted        = "PaymentDeleted"
)

// Envelope wraps every event on the wire.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an envelope around payload. The correlation id is the id of the
// warranty or job the event concerns.
func New(eventType, tenantID, correlationID string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Payload:       body,
	}, nil
}

// Unwrap decodes an envelope payload.
func Unwrap[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// Publisher hands events to a broker. Publishing is best-effort; failures are
// logged by the implementation, never returned to the mutation that caused them.
type Publisher interface {
	Publish(ctx context.Context, env Envelope)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// ---- Payloads ----

type WarrantyIssuedPayload struct {
	WarrantyID string           `json:"warranty_id"`
	ShortCode  string           `json:"short_code"`
	ExpiresAt  time.Time        `json:"expires_at"`
	RepairCost *decimal.Decimal `json:"repair_cost,omitempty"`
}

type WarrantyStatusChangedPayload struct {
	WarrantyID string `json:"warranty_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type JobCreatedPayload struct {
	JobID         string          `json:"job_id"`
	JobCode       string          `json:"job_code"`
	Category      string          `json:"category"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Advance       decimal.Decimal `json:"advance"`
}

type JobStatusChangedPayload struct {
	JobID   string          `json:"job_id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Advance decimal.Decimal `json:"advance"`
}

type JobDetailsUpdatedPayload struct {
	JobID         string          `json:"job_id"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Advance       decimal.Decimal `json:"advance"`
}

type JobDeletedPayload struct {
	JobID string `json:"job_id"`
}

type PaymentRecordedPayload struct {
	JobID     string          `json:"job_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Advance   decimal.Decimal `json:"advance"`
}

type PaymentDeletedPayload struct {
	JobID     string          `json:"job_id"`
	PaymentID string          `json:"payment_id"`
	Advance   decimal.Decimal `json:"advance"`
}

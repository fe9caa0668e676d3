// Package ledger records payments against job sheets and keeps the job's
// cached advance equal to the sum of its payments.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
	"fixshop/internal/events"
	"fixshop/internal/metrics"
	"fixshop/internal/repo"
)

// Store is the persistence the ledger needs.
type Store interface {
	ListPayments(ctx context.Context, tenantID, jobID string) ([]domain.Payment, error)
	InTx(ctx context.Context, fn func(repo.Tx) error) error
}

// Entry is a recorded payment together with the job's recomputed advance.
type Entry struct {
	Payment domain.Payment
	Advance decimal.Decimal
	Balance decimal.Decimal
}

// Service is the payment ledger.
type Service struct {
	store   Store
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a ledger. now may be nil.
func NewService(store Store, pub events.Publisher, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		events:  pub,
		metrics: m,
		logger:  logger.With("component", "ledger"),
		now:     now,
	}
}

// AddPayment appends a payment and recomputes the job's advance from the full
// ledger. The new advance may exceed the estimate.
func (s *Service) AddPayment(ctx context.Context, tenant domain.Tenant, jobID string, in domain.NewPayment) (*Entry, error) {
	start := time.Now()
	if err := in.Check(); err != nil {
		return nil, fmt.Errorf("add payment: %w", err)
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var entry Entry
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		job, err := tx.LockJob(ctx, tenant.ID, jobID)
		if err != nil {
			return err
		}
		payment, err := tx.InsertPayment(ctx, domain.Payment{
			ID:     uuid.NewString(),
			JobID:  job.ID,
			Amount: in.Amount,
			PaidAt: paidAt,
			Note:   in.Note,
		})
		if err != nil {
			return err
		}
		advance, err := recompute(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		entry = Entry{Payment: *payment, Advance: advance, Balance: job.EstimatedCost.Sub(advance)}
		return nil
	})
	s.observe("add", start, err)
	if err != nil {
		return nil, fmt.Errorf("add payment: %w", err)
	}

	s.logger.Info("payment recorded", "tenant_id", tenant.ID, "job_id", jobID, "payment_id", entry.Payment.ID,
		"amount", entry.Payment.Amount.String(), "advance", entry.Advance.String())
	s.publish(ctx, events.EventPaymentRecorded, tenant.ID, jobID, events.PaymentRecordedPayload{
		JobID:     jobID,
		PaymentID: entry.Payment.ID,
		Amount:    entry.Payment.Amount,
		Advance:   entry.Advance,
	})
	return &entry, nil
}

// DeletePayment removes one payment and recomputes the advance. It returns
// the new advance.
func (s *Service) DeletePayment(ctx context.Context, tenant domain.Tenant, jobID, paymentID string) (decimal.Decimal, error) {
	start := time.Now()
	var advance decimal.Decimal
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		job, err := tx.LockJob(ctx, tenant.ID, jobID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, job.ID, paymentID); err != nil {
			return err
		}
		advance, err = recompute(ctx, tx, job.ID)
		return err
	})
	s.observe("delete", start, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("delete payment: %w", err)
	}

	s.logger.Info("payment deleted", "tenant_id", tenant.ID, "job_id", jobID, "payment_id", paymentID, "advance", advance.String())
	s.publish(ctx, events.EventPaymentDeleted, tenant.ID, jobID, events.PaymentDeletedPayload{
		JobID:     jobID,
		PaymentID: paymentID,
		Advance:   advance,
	})
	return advance, nil
}

// Payments lists a job's ledger, oldest first.
func (s *Service) Payments(ctx context.Context, tenant domain.Tenant, jobID string) ([]domain.Payment, error) {
	payments, err := s.store.ListPayments(ctx, tenant.ID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// recompute reads every amount on the job and stores their sum as the advance.
func recompute(ctx context.Context, tx repo.Tx, jobID string) (decimal.Decimal, error) {
	amounts, err := tx.PaymentAmounts(ctx, jobID)
	if err != nil {
		return decimal.Zero, err
	}
	total := domain.SumPayments(amounts)
	if err := tx.SetJobAdvance(ctx, jobID, total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.LedgerOperations.WithLabelValues(op, status).Inc()
	s.metrics.LedgerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Service) publish(ctx context.Context, eventType, tenantID, id string, payload any) {
	env, err := events.New(eventType, tenantID, id, payload)
	if err != nil {
		s.logger.Error("build event", "type", eventType, "error", err)
		return
	}
	s.events.Publish(ctx, env)
}

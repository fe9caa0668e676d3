// Package jobs manages repair job sheets and their status workflow.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"fixshop/internal/domain"
	"fixshop/internal/events"
	"fixshop/internal/metrics"
	"fixshop/internal/repo"
)

const notifyTimeout = 10 * time.Second

// Store is the persistence the service needs.
type Store interface {
	GetJob(ctx context.Context, tenantID, id string) (*domain.JobSheet, error)
	ListJobs(ctx context.Context, tenantID string, filter repo.ListFilter) ([]domain.JobSheet, error)
	UpdateJobDetails(ctx context.Context, job domain.JobSheet) error
	DeleteJob(ctx context.Context, tenantID, id string) error
	InTx(ctx context.Context, fn func(repo.Tx) error) error
}

// Notifier tells the customer their device has moved along.
type Notifier interface {
	NotifyJobStatus(ctx context.Context, tenant domain.Tenant, job domain.JobSheet) error
}

// Options tune a Service.
type Options struct {
	PhoneRegion string
	Now         func() time.Time
	Notifier    Notifier
}

// Service implements the job sheet lifecycle.
type Service struct {
	store       Store
	events      events.Publisher
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	phoneRegion string
	now         func() time.Time
	newCode     func() string
}

// NewService wires a job service.
func NewService(store Store, pub events.Publisher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       store,
		events:      pub,
		notifier:    opts.Notifier,
		metrics:     m,
		logger:      logger.With("component", "jobs"),
		phoneRegion: opts.PhoneRegion,
		now:         now,
		newCode:     jobCode,
	}
}

// jobCode returns JO- followed by four random digits.
func jobCode() string {
	return fmt.Sprintf("JO-%04d", rand.IntN(10000))
}

// Create takes a device in. A non-zero advance is written as the job's first
// payment so the ledger and the cached advance agree from the start.
func (s *Service) Create(ctx context.Context, tenant domain.Tenant, in domain.NewJobSheet) (*domain.JobSheet, error) {
	if err := in.Check(); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	customer, err := in.Customer.Normalize(s.phoneRegion)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	category := in.Category
	if category == "" {
		category = tenant.Category
	}
	if category == "" {
		category = domain.CategoryGeneral
	}

	now := s.now()
	job := domain.JobSheet{
		ID:            uuid.NewString(),
		TenantID:      tenant.ID,
		JobCode:       s.newCode(),
		Customer:      customer,
		Category:      category,
		DeviceBrand:   trimmed(in.DeviceBrand),
		DeviceModel:   trimmed(in.DeviceModel),
		Technical:     domain.DecodeTechnicalPayload(category, in.Technical),
		Problem:       strings.TrimSpace(in.Problem),
		Accessories:   trimmed(in.Accessories),
		Status:        domain.JobReceived,
		ReceivedAt:    now,
		ExpectedAt:    in.ExpectedAt,
		EstimatedCost: in.EstimatedCost,
		Advance:       in.Advance,
	}

	var created *domain.JobSheet
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		inserted, err := tx.InsertJob(ctx, job)
		if err != nil {
			return err
		}
		if in.Advance.IsPositive() {
			note := "Advance at intake"
			if _, err := tx.InsertPayment(ctx, domain.Payment{
				ID:     uuid.NewString(),
				JobID:  inserted.ID,
				Amount: in.Advance,
				PaidAt: now,
				Note:   &note,
			}); err != nil {
				return err
			}
		}
		created = inserted
		return nil
	})
	if err != nil {
		s.metrics.IncError("jobs")
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job created", "tenant_id", tenant.ID, "job_id", created.ID, "job_code", created.JobCode, "category", created.Category)
	s.publish(ctx, events.EventJobCreated, tenant.ID, created.ID, events.JobCreatedPayload{
		JobID:         created.ID,
		JobCode:       created.JobCode,
		Category:      string(created.Category),
		EstimatedCost: created.EstimatedCost,
		Advance:       created.Advance,
	})
	return created, nil
}

// Get returns a job owned by tenant.
func (s *Service) Get(ctx context.Context, tenant domain.Tenant, id string) (*domain.JobSheet, error) {
	return s.store.GetJob(ctx, tenant.ID, id)
}

// List returns the tenant's jobs, newest intake first.
func (s *Service) List(ctx context.Context, tenant domain.Tenant, filter repo.ListFilter) ([]domain.JobSheet, error) {
	if filter.Status != "" {
		status, err := domain.ParseJobStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = string(status)
	}
	return s.store.ListJobs(ctx, tenant.ID, filter)
}

// SetStatus moves a job to status. Delivering a job settles it: the advance
// becomes the estimated cost whatever the ledger says. Repeating the current
// status changes nothing.
func (s *Service) SetStatus(ctx context.Context, tenant domain.Tenant, id string, status domain.JobStatus) (*domain.JobSheet, error) {
	if !status.Valid() {
		return nil, domain.Validationf("unknown job status %q", status)
	}

	var (
		job     *domain.JobSheet
		from    domain.JobStatus
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		locked, err := tx.LockJob(ctx, tenant.ID, id)
		if err != nil {
			return err
		}
		job, from = locked, locked.Status
		if from == status {
			return nil
		}
		if !from.CanTransitionTo(status) {
			return domain.Validationf("job %s cannot move from %s to %s", id, from, status)
		}
		if err := tx.SetJobStatus(ctx, id, status); err != nil {
			return err
		}
		if status == domain.JobDelivered {
			if err := tx.SetJobAdvance(ctx, id, job.EstimatedCost); err != nil {
				return err
			}
			job.Advance = job.EstimatedCost
		}
		job.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set job status: %w", err)
	}
	if !changed {
		return job, nil
	}

	if s.metrics != nil {
		s.metrics.JobTransitions.WithLabelValues(string(from), string(status)).Inc()
	}
	s.logger.Info("job status changed", "tenant_id", tenant.ID, "job_id", id, "from", from, "to", status)
	s.publish(ctx, events.EventJobStatusChanged, tenant.ID, id, events.JobStatusChangedPayload{
		JobID:   id,
		From:    string(from),
		To:      string(status),
		Advance: job.Advance,
	})
	if status == domain.JobReady || status == domain.JobDelivered {
		s.notify(ctx, tenant, *job)
	}
	return job, nil
}

// UpdateDetails overwrites the job's mutable fields. The technical payload
// is read leniently; the advance may not exceed the estimate.
func (s *Service) UpdateDetails(ctx context.Context, tenant domain.Tenant, id string, in domain.JobDetails) (*domain.JobSheet, error) {
	if err := in.Check(); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	customer, err := in.Customer.Normalize(s.phoneRegion)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	job, err := s.store.GetJob(ctx, tenant.ID, id)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	job.Customer = customer
	job.DeviceBrand = trimmed(in.DeviceBrand)
	job.DeviceModel = trimmed(in.DeviceModel)
	job.Technical = domain.DecodeTechnicalPayload(job.Category, in.Technical)
	job.Problem = strings.TrimSpace(in.Problem)
	job.Accessories = trimmed(in.Accessories)
	job.EstimatedCost = in.EstimatedCost
	job.Advance = in.Advance
	job.ExpectedAt = in.ExpectedAt

	if err := s.store.UpdateJobDetails(ctx, *job); err != nil {
		s.metrics.IncError("jobs")
		return nil, fmt.Errorf("update job: %w", err)
	}

	s.logger.Info("job details updated", "tenant_id", tenant.ID, "job_id", id)
	s.publish(ctx, events.EventJobDetailsUpdated, tenant.ID, id, events.JobDetailsUpdatedPayload{
		JobID:         id,
		EstimatedCost: job.EstimatedCost,
		Advance:       job.Advance,
	})
	return job, nil
}

// Delete removes a job and its payments.
func (s *Service) Delete(ctx context.Context, tenant domain.Tenant, id string) error {
	if err := s.store.DeleteJob(ctx, tenant.ID, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	s.logger.Info("job deleted", "tenant_id", tenant.ID, "job_id", id)
	s.publish(ctx, events.EventJobDeleted, tenant.ID, id, events.JobDeletedPayload{JobID: id})
	return nil
}

func (s *Service) notify(ctx context.Context, tenant domain.Tenant, job domain.JobSheet) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyJobStatus(ctx, tenant, job); err != nil {
		s.metrics.IncError("notify")
		s.logger.Warn("notify customer failed", "tenant_id", tenant.ID, "job_id", job.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType, tenantID, id string, payload any) {
	env, err := events.New(eventType, tenantID, id, payload)
	if err != nil {
		s.logger.Error("build event", "type", eventType, "error", err)
		return
	}
	s.events.Publish(ctx, env)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

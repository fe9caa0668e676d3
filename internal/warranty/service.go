// Package warranty issues warranty certificates and manages their stored status.
package warranty

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

// Store is the persistence the service needs.
type Store interface {
	UpdateSubscriptionStatus(ctx context.Context, tenantID string, status domain.SubscriptionStatus) error
	InsertWarranty(ctx context.Context, w domain.Warranty) (*domain.Warranty, error)
	GetWarranty(ctx context.Context, tenantID, id string) (*domain.Warranty, error)
	GetWarrantyByCode(ctx context.Context, code string) (*domain.Warranty, error)
	ListWarranties(ctx context.Context, tenantID string, filter repo.ListFilter) ([]domain.Warranty, error)
	UpdateWarrantyStatus(ctx context.Context, tenantID, id string, status domain.WarrantyStatus) error
}

// Options tune a Service.
type Options struct {
	PhoneRegion string
	Now         func() time.Time
}

// Service implements the warranty lifecycle.
type Service struct {
	store       Store
	events      events.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	phoneRegion string
	now         func() time.Time
	newCode     func() string
}

// NewService wires a warranty service.
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
		metrics:     m,
		logger:      logger.With("component", "warranty"),
		phoneRegion: opts.PhoneRegion,
		now:         now,
		newCode:     shortCode,
	}
}

// shortCode returns FS- followed by five random digits. Uniqueness is left
// to the storage layer.
func shortCode() string {
	return fmt.Sprintf("FS-%05d", rand.IntN(100000))
}

// Create issues a warranty for tenant. Unverified tenants are refused; a
// subscription whose end date has passed is marked EXPIRED before refusing.
func (s *Service) Create(ctx context.Context, tenant domain.Tenant, in domain.NewWarranty) (*domain.Warranty, error) {
	if !tenant.Verified {
		s.countIssue("unverified")
		return nil, fmt.Errorf("create warranty: tenant %s is not verified: %w", tenant.ID, domain.ErrAuthorization)
	}

	now := s.now()
	if tenant.SubscriptionLapsed(now) {
		if tenant.SubscriptionStatus != domain.SubscriptionExpired {
			if err := s.store.UpdateSubscriptionStatus(ctx, tenant.ID, domain.SubscriptionExpired); err != nil {
				return nil, fmt.Errorf("create warranty: expire subscription: %w", err)
			}
			s.logger.Info("subscription expired", "tenant_id", tenant.ID, "ended_at", tenant.SubscriptionEndsAt)
		}
		s.countIssue("subscription")
		return nil, fmt.Errorf("create warranty: subscription ended: %w", domain.ErrSubscription)
	}
	if !tenant.SubscriptionStatus.AllowsIssuance() {
		s.countIssue("subscription")
		return nil, fmt.Errorf("create warranty: subscription status %s: %w", tenant.SubscriptionStatus, domain.ErrSubscription)
	}

	if err := in.Check(); err != nil {
		s.countIssue("invalid")
		return nil, fmt.Errorf("create warranty: %w", err)
	}
	customer, err := in.Customer.Normalize(s.phoneRegion)
	if err != nil {
		s.countIssue("invalid")
		return nil, fmt.Errorf("create warranty: %w", err)
	}

	w := domain.Warranty{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		ShortCode:    s.newCode(),
		Customer:     customer,
		DeviceModel:  strings.TrimSpace(in.DeviceModel),
		RepairType:   strings.TrimSpace(in.RepairType),
		RepairCost:   in.RepairCost,
		DurationDays: in.DurationDays,
		IssuedAt:     now,
		ExpiresAt:    domain.WarrantyExpiry(now, in.DurationDays),
		Status:       domain.WarrantyActive,
		PrivateNote:  in.PrivateNote,
	}
	inserted, err := s.store.InsertWarranty(ctx, w)
	if err != nil {
		s.countIssue("error")
		s.metrics.IncError("warranty")
		return nil, fmt.Errorf("create warranty: %w", err)
	}

	s.countIssue("issued")
	s.logger.Info("warranty issued", "tenant_id", tenant.ID, "warranty_id", inserted.ID, "short_code", inserted.ShortCode)
	s.publish(ctx, events.EventWarrantyIssued, tenant.ID, inserted.ID, events.WarrantyIssuedPayload{
		WarrantyID: inserted.ID,
		ShortCode:  inserted.ShortCode,
		ExpiresAt:  inserted.ExpiresAt,
		RepairCost: inserted.RepairCost,
	})
	return inserted, nil
}

// DisplayStatus derives the status to show for w at the current time.
func (s *Service) DisplayStatus(w domain.Warranty) domain.WarrantyStatus {
	return w.DisplayStatus(s.now())
}

// Get returns a warranty owned by tenant.
func (s *Service) Get(ctx context.Context, tenant domain.Tenant, id string) (*domain.Warranty, error) {
	return s.store.GetWarranty(ctx, tenant.ID, id)
}

// List returns the tenant's warranties, newest first.
func (s *Service) List(ctx context.Context, tenant domain.Tenant, filter repo.ListFilter) ([]domain.Warranty, error) {
	if filter.Status != "" {
		status, err := domain.ParseWarrantyStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = string(status)
	}
	return s.store.ListWarranties(ctx, tenant.ID, filter)
}

// Lookup finds a warranty by its public short code, for certificate checks.
func (s *Service) Lookup(ctx context.Context, code string) (*domain.Warranty, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.Validationf("short code is required")
	}
	return s.store.GetWarrantyByCode(ctx, code)
}

// SetStatus changes the stored status. Any status may follow any other;
// setting the current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, tenant domain.Tenant, id string, status domain.WarrantyStatus) error {
	if !status.Valid() {
		return domain.Validationf("unknown warranty status %q", status)
	}
	current, err := s.store.GetWarranty(ctx, tenant.ID, id)
	if err != nil {
		return fmt.Errorf("set warranty status: %w", err)
	}
	if current.Status == status {
		return nil
	}
	if err := s.store.UpdateWarrantyStatus(ctx, tenant.ID, id, status); err != nil {
		s.metrics.IncError("warranty")
		return fmt.Errorf("set warranty status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.WarrantyTransitions.WithLabelValues(string(status)).Inc()
	}
	s.logger.Info("warranty status changed", "tenant_id", tenant.ID, "warranty_id", id, "from", current.Status, "to", status)
	s.publish(ctx, events.EventWarrantyStatusChanged, tenant.ID, id, events.WarrantyStatusChangedPayload{
		WarrantyID: id,
		From:       string(current.Status),
		To:         string(status),
	})
	return nil
}

func (s *Service) countIssue(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WarrantiesIssued.WithLabelValues(outcome).Inc()
}

func (s *Service) publish(ctx context.Context, eventType, tenantID, id string, payload any) {
	env, err := events.New(eventType, tenantID, id, payload)
	if err != nil {
		s.logger.Error("build event", "type", eventType, "error", err)
		return
	}
	s.events.Publish(ctx, env)
}

// Package stats reduces a tenant's warranty and job history into dashboard
// figures.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/cache"
	"fixshop/internal/domain"
	"fixshop/internal/metrics"
)

const (
	cacheKeyPrefix     = "stats:"
	invalidatedPrefix  = "stats:invalidated:"
	lockKeyPrefix      = "lock:stats:"
	lockTTL            = 10 * time.Second
	defaultLockWait    = 2 * time.Second
	holderPollInterval = 50 * time.Millisecond
)

// Store is the read side the aggregator needs.
type Store interface {
	ListWarrantiesIssuedSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Warranty, error)
	CountWarranties(ctx context.Context, tenantID string) (int64, error)
	SumWarrantyCost(ctx context.Context, tenantID string) (decimal.Decimal, error)
	CountJobsByStatus(ctx context.Context, tenantID string) (map[domain.JobStatus]int64, error)
}

// Cache stores computed snapshots. *cache.Redis satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Snapshot is the dashboard payload. Revenue fields are nil once redacted.
type Snapshot struct {
	Total           int64            `json:"total"`
	Active          int64            `json:"active"`
	Revenue         *decimal.Decimal `json:"revenue"`
	MonthlyRevenue  *decimal.Decimal `json:"monthlyRevenue"`
	WeeklyChart     []Point          `json:"weeklyChart"`
	MonthlyChart    []Point          `json:"monthlyChart"`
	JobChart        []CountPoint     `json:"jobChart"`
	JobDistribution []StatusCount    `json:"jobDistribution"`
	RevenueHidden   bool             `json:"revenueHidden"`
	Timezone        string           `json:"timezone"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// Redacted returns a copy without the money figures.
func (s Snapshot) Redacted() Snapshot {
	s.Revenue = nil
	s.MonthlyRevenue = nil
	s.WeeklyChart = nil
	s.MonthlyChart = nil
	s.RevenueHidden = true
	return s
}

// Options configures the aggregator.
type Options struct {
	// Location is used for tenants without a time zone. Defaults to UTC.
	Location *time.Location
	// CacheTTL of zero disables snapshot caching.
	CacheTTL time.Duration
	// LockWait bounds how long a caller waits for another instance's
	// recompute before computing on its own. Defaults to two seconds.
	LockWait time.Duration
	Now      func() time.Time
}

// Service computes statistics snapshots.
type Service struct {
	store    Store
	cache    Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	location *time.Location
	ttl      time.Duration
	lockWait time.Duration
	now      func() time.Time
}

// NewService wires an aggregator. c may be nil.
func NewService(store Store, c Cache, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	wait := opts.LockWait
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &Service{
		store:    store,
		cache:    c,
		metrics:  m,
		logger:   logger.With("component", "stats"),
		location: loc,
		ttl:      opts.CacheTTL,
		lockWait: wait,
		now:      now,
	}
}

// Get returns the tenant's full snapshot, from cache when fresh.
func (s *Service) Get(ctx context.Context, tenant domain.Tenant) (*Snapshot, error) {
	start := time.Now()
	if s.cache == nil || s.ttl <= 0 {
		snap, err := s.Compute(ctx, tenant)
		s.observe("disabled", start)
		return snap, err
	}

	key := cacheKeyPrefix + tenant.ID
	var cached Snapshot
	found, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("read stats cache", "tenant_id", tenant.ID, "error", err)
	}
	if found {
		s.observe("hit", start)
		return &cached, nil
	}

	release, err := s.cache.Lock(ctx, lockKeyPrefix+tenant.ID, lockTTL)
	switch {
	case errors.Is(err, cache.ErrLockNotObtained):
		// Another instance is recomputing; take its result when it lands and
		// never write over it.
		if snap, ok := s.awaitHolder(ctx, key); ok {
			s.observe("shared", start)
			return snap, nil
		}
		return s.computeUncached(ctx, tenant, start)
	case err != nil:
		s.logger.Warn("lock stats recompute", "tenant_id", tenant.ID, "error", err)
		return s.computeUncached(ctx, tenant, start)
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	computedAt := time.Now()
	snap, err := s.Compute(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if s.invalidatedSince(ctx, tenant.ID, computedAt) {
		s.logger.Debug("stats invalidated during recompute; not caching", "tenant_id", tenant.ID)
	} else if err := s.cache.SetJSON(ctx, key, snap, s.ttl); err != nil {
		s.logger.Warn("write stats cache", "tenant_id", tenant.ID, "error", err)
	}
	s.observe("miss", start)
	return snap, nil
}

func (s *Service) computeUncached(ctx context.Context, tenant domain.Tenant, start time.Time) (*Snapshot, error) {
	snap, err := s.Compute(ctx, tenant)
	if err != nil {
		return nil, err
	}
	s.observe("uncached", start)
	return snap, nil
}

// awaitHolder polls the cache for the lock holder's snapshot until lockWait
// elapses.
func (s *Service) awaitHolder(ctx context.Context, key string) (*Snapshot, bool) {
	deadline := time.NewTimer(s.lockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(holderPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			var cached Snapshot
			found, err := s.cache.GetJSON(ctx, key, &cached)
			if err != nil {
				s.logger.Warn("read stats cache", "key", key, "error", err)
				return nil, false
			}
			if found {
				return &cached, true
			}
		}
	}
}

// invalidatedSince reports whether Invalidate ran for tenantID after t.
func (s *Service) invalidatedSince(ctx context.Context, tenantID string, t time.Time) bool {
	var stamp int64
	found, err := s.cache.GetJSON(ctx, invalidatedPrefix+tenantID, &stamp)
	if err != nil {
		s.logger.Warn("read stats invalidation", "tenant_id", tenantID, "error", err)
		return true
	}
	return found && stamp > t.UnixNano()
}

// Compute builds a snapshot straight from the store. The bucketed figures all
// come from one fetched set; totals are separate queries.
func (s *Service) Compute(ctx context.Context, tenant domain.Tenant) (*Snapshot, error) {
	loc := tenant.Location(s.location)
	now := s.now().In(loc)

	warranties, err := s.store.ListWarrantiesIssuedSince(ctx, tenant.ID, windowStart(now))
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	total, err := s.store.CountWarranties(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	revenue, err := s.store.SumWarrantyCost(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	counts, err := s.store.CountJobsByStatus(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}

	b := reduce(now, warranties)
	return &Snapshot{
		Total:           total,
		Active:          b.Active,
		Revenue:         &revenue,
		MonthlyRevenue:  &b.MonthlyRevenue,
		WeeklyChart:     b.Weekly,
		MonthlyChart:    b.Monthly,
		JobChart:        b.Jobs,
		JobDistribution: distribution(counts),
		Timezone:        loc.String(),
		GeneratedAt:     now,
	}, nil
}

// Invalidate drops the cached snapshot for tenantID.
func (s *Service) Invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, invalidatedPrefix+tenantID, time.Now().UnixNano(), s.ttl+lockTTL); err != nil {
		s.logger.Warn("mark stats invalidated", "tenant_id", tenantID, "error", err)
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+tenantID); err != nil {
		s.logger.Warn("invalidate stats cache", "tenant_id", tenantID, "error", err)
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.StatsLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

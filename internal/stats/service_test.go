package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fixshop/internal/cache"
	"fixshop/internal/domain"
	"fixshop/internal/repo"
	"fixshop/internal/repo/repotest"
)

func insertWarranty(t *testing.T, r repo.Repository, tenantID string, issued time.Time, cost string, status domain.WarrantyStatus) {
	t.Helper()
	c := decimal.RequireFromString(cost)
	_, err := r.InsertWarranty(context.Background(), domain.Warranty{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ShortCode:    "FS-" + uuid.NewString()[:8],
		Customer:     domain.Customer{Name: "Ravi", Phone: "+919812345678"},
		DeviceModel:  "Galaxy A52",
		RepairType:   "Screen",
		RepairCost:   &c,
		DurationDays: 90,
		IssuedAt:     issued,
		ExpiresAt:    domain.WarrantyExpiry(issued, 90),
		Status:       status,
	})
	if err != nil {
		t.Fatalf("insert warranty: %v", err)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestComputeAcrossFourteenMonths(t *testing.T) {
	store := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, store)
	other := repotest.CreateTenant(t, store)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	// One warranty on the 10th of each month, May 2023 to June 2024.
	for i := 0; i < 14; i++ {
		issued := time.Date(2023, 5+time.Month(i), 10, 9, 0, 0, 0, time.UTC)
		status := domain.WarrantyActive
		if i == 5 {
			status = domain.WarrantyClaimed
		}
		insertWarranty(t, store, tenant.ID, issued, "100", status)
	}
	insertWarranty(t, store, other.ID, now.Add(-time.Hour), "5000", domain.WarrantyActive)

	svc := NewService(store, nil, nil, repotest.Logger(), Options{Now: fixedClock(now)})
	snap, err := svc.Compute(context.Background(), *tenant)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if snap.Total != 14 {
		t.Errorf("total = %d, want 14", snap.Total)
	}
	// The two oldest months are ACTIVE but fall outside the fetched window.
	if snap.Active != 11 {
		t.Errorf("active = %d, want 11", snap.Active)
	}
	if !snap.Revenue.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("revenue = %s, want 1400", snap.Revenue)
	}
	if !snap.MonthlyRevenue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("monthly revenue = %s, want 100", snap.MonthlyRevenue)
	}
	if len(snap.MonthlyChart) != 12 || snap.MonthlyChart[0].Label != "Jul" || snap.MonthlyChart[11].Label != "Jun" {
		t.Fatalf("monthly chart = %+v", snap.MonthlyChart)
	}
	for i, p := range snap.MonthlyChart {
		if !p.Value.Equal(decimal.NewFromInt(100)) || snap.JobChart[i].Count != 1 {
			t.Errorf("month %d = %s/%d, want 100/1", i, p.Value, snap.JobChart[i].Count)
		}
	}
	if len(snap.WeeklyChart) != 7 || !snap.WeeklyChart[1].Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("weekly chart = %+v", snap.WeeklyChart)
	}
	if len(snap.JobDistribution) != 4 {
		t.Errorf("job distribution = %+v", snap.JobDistribution)
	}
	if snap.Timezone != "UTC" {
		t.Errorf("timezone = %s, want UTC", snap.Timezone)
	}
}

func TestComputeUsesTenantTimezone(t *testing.T) {
	store := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, store, repotest.WithTimezone("Asia/Kolkata"))
	if tenant.Location(nil).String() != "Asia/Kolkata" {
		t.Skip("zoneinfo for Asia/Kolkata not available")
	}
	now := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	insertWarranty(t, store, tenant.ID, time.Date(2024, 6, 30, 20, 0, 0, 0, time.UTC), "300", domain.WarrantyActive)

	svc := NewService(store, nil, nil, repotest.Logger(), Options{Now: fixedClock(now)})
	snap, err := svc.Compute(context.Background(), *tenant)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !snap.MonthlyRevenue.Equal(decimal.NewFromInt(300)) {
		t.Errorf("monthly revenue = %s, want 300", snap.MonthlyRevenue)
	}
	if snap.MonthlyChart[11].Label != "Jul" || !snap.MonthlyChart[11].Value.Equal(decimal.NewFromInt(300)) {
		t.Errorf("current month = %+v", snap.MonthlyChart[11])
	}
}

func TestRedactedHidesMoney(t *testing.T) {
	rev := decimal.NewFromInt(10)
	snap := Snapshot{
		Total:        3,
		Active:       2,
		Revenue:      &rev,
		WeeklyChart:  []Point{{Label: "Mon"}},
		MonthlyChart: []Point{{Label: "Jan"}},
		JobChart:     []CountPoint{{Label: "Jan", Count: 3}},
	}
	red := snap.Redacted()
	if red.Revenue != nil || red.MonthlyRevenue != nil || red.WeeklyChart != nil || red.MonthlyChart != nil {
		t.Fatalf("money figures leaked: %+v", red)
	}
	if !red.RevenueHidden || red.Total != 3 || red.Active != 2 || len(red.JobChart) != 1 {
		t.Fatalf("non-money figures changed: %+v", red)
	}
	if snap.Revenue == nil {
		t.Fatalf("original snapshot modified")
	}
}

type memoryCache struct {
	mu     sync.Mutex
	items  map[string][]byte
	locked map[string]bool
	sets   map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}, locked: map[string]bool{}, sets: map[string]int{}}
}

func (m *memoryCache) put(key string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
}

func (m *memoryCache) writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[key]
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	m.sets[key]++
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *memoryCache) Lock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[key] {
		return nil, cache.ErrLockNotObtained
	}
	m.locked[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locked, key)
		return nil
	}, nil
}

func TestGetServesFromCacheUntilInvalidated(t *testing.T) {
	store := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, store)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	insertWarranty(t, store, tenant.ID, now.Add(-time.Hour), "100", domain.WarrantyActive)

	mc := newMemoryCache()
	svc := NewService(store, mc, nil, repotest.Logger(), Options{Now: fixedClock(now), CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := svc.Get(ctx, *tenant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Total != 1 {
		t.Fatalf("total = %d, want 1", first.Total)
	}

	insertWarranty(t, store, tenant.ID, now.Add(-time.Minute), "50", domain.WarrantyActive)
	cached, err := svc.Get(ctx, *tenant)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if cached.Total != 1 || !cached.Revenue.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected cached snapshot, got total=%d revenue=%s", cached.Total, cached.Revenue)
	}

	svc.Invalidate(ctx, tenant.ID)
	fresh, err := svc.Get(ctx, *tenant)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if fresh.Total != 2 || !fresh.Revenue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("fresh total=%d revenue=%s", fresh.Total, fresh.Revenue)
	}
	if n := mc.writes(cacheKeyPrefix + tenant.ID); n != 2 {
		t.Fatalf("cache writes = %d, want 2", n)
	}
	if len(mc.locked) != 0 {
		t.Fatalf("locks left held: %v", mc.locked)
	}
}

func TestGetWaitsForLockHolderResult(t *testing.T) {
	store := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, store)
	key := cacheKeyPrefix + tenant.ID
	mc := newMemoryCache()
	mc.locked[lockKeyPrefix+tenant.ID] = true

	raw, err := json.Marshal(Snapshot{Total: 42})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	go func() {
		time.Sleep(3 * holderPollInterval)
		mc.put(key, raw)
	}()

	svc := NewService(store, mc, nil, repotest.Logger(), Options{CacheTTL: time.Minute, LockWait: 5 * time.Second})
	snap, err := svc.Get(context.Background(), *tenant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Total != 42 {
		t.Fatalf("total = %d, want the holder's snapshot (42)", snap.Total)
	}
	if n := mc.writes(key); n != 0 {
		t.Fatalf("cache writes without the lock = %d, want 0", n)
	}
}

func TestGetComputesWithoutCachingWhenHolderIsSlow(t *testing.T) {
	store := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, store)
	mc := newMemoryCache()
	mc.locked[lockKeyPrefix+tenant.ID] = true

	svc := NewService(store, mc, nil, repotest.Logger(), Options{CacheTTL: time.Minute, LockWait: 2 * holderPollInterval})
	snap, err := svc.Get(context.Background(), *tenant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Total != 0 || len(snap.MonthlyChart) != 12 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if n := mc.writes(cacheKeyPrefix + tenant.ID); n != 0 {
		t.Fatalf("cache writes without the lock = %d, want 0", n)
	}
	if !mc.locked[lockKeyPrefix+tenant.ID] {
		t.Fatalf("foreign lock released")
	}
}

// invalidatingStore runs Invalidate in the middle of a recompute, as a
// concurrent mutation would.
type invalidatingStore struct {
	repo.Repository
	svc  *Service
	once sync.Once
}

func (s *invalidatingStore) CountWarranties(ctx context.Context, tenantID string) (int64, error) {
	s.once.Do(func() { s.svc.Invalidate(ctx, tenantID) })
	return s.Repository.CountWarranties(ctx, tenantID)
}

func TestGetDoesNotCacheSnapshotInvalidatedMidCompute(t *testing.T) {
	base := repotest.NewSQLite(t)
	tenant := repotest.CreateTenant(t, base)
	mc := newMemoryCache()
	store := &invalidatingStore{Repository: base}
	svc := NewService(store, mc, nil, repotest.Logger(), Options{CacheTTL: time.Minute})
	store.svc = svc
	ctx := context.Background()

	if _, err := svc.Get(ctx, *tenant); err != nil {
		t.Fatalf("get: %v", err)
	}
	key := cacheKeyPrefix + tenant.ID
	if n := mc.writes(key); n != 0 {
		t.Fatalf("stale snapshot cached: writes = %d", n)
	}

	if _, err := svc.Get(ctx, *tenant); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if n := mc.writes(key); n != 1 {
		t.Fatalf("cache writes after settle = %d, want 1", n)
	}
	if len(mc.locked) != 0 {
		t.Fatalf("locks left held: %v", mc.locked)
	}
}

type failingStore struct{ repo.Repository }

func (failingStore) ListWarrantiesIssuedSince(context.Context, string, time.Time) ([]domain.Warranty, error) {
	return nil, fmt.Errorf("boom")
}

func TestComputePropagatesStoreErrors(t *testing.T) {
	svc := NewService(failingStore{}, nil, nil, repotest.Logger(), Options{})
	_, err := svc.Compute(context.Background(), domain.Tenant{ID: "t"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected store error, got %v", err)
	}
}

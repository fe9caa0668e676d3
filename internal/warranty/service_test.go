package warranty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
	"fixshop/internal/events"
	"fixshop/internal/repo"
	"fixshop/internal/repo/repotest"
)

func newTestService(t *testing.T, now time.Time) (*Service, *repo.SQLiteRepository, *events.Recorder) {
	t.Helper()
	store := repotest.NewSQLite(t)
	rec := &events.Recorder{}
	svc := NewService(store, rec, nil, repotest.Logger(), Options{
		PhoneRegion: "IN",
		Now:         func() time.Time { return now },
	})
	return svc, store, rec
}

func sampleInput(days int) domain.NewWarranty {
	cost := decimal.RequireFromString("1500")
	return domain.NewWarranty{
		Customer:     domain.Customer{Name: "Asha", Phone: "+91 98765 43210"},
		DeviceModel:  "Galaxy A52",
		RepairType:   "Display replacement",
		RepairCost:   &cost,
		DurationDays: days,
	}
}

func TestCreateDerivesExpiryAndDisplayStatus(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, store, rec := newTestService(t, issued)
	tenant := repotest.CreateTenant(t, store)

	w, err := svc.Create(context.Background(), *tenant, sampleInput(30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if want := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC); !w.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", w.ExpiresAt, want)
	}
	if w.Status != domain.WarrantyActive {
		t.Fatalf("stored status = %s, want ACTIVE", w.Status)
	}
	if len(w.ShortCode) != len("FS-00000") || w.ShortCode[:3] != "FS-" {
		t.Fatalf("unexpected short code %q", w.ShortCode)
	}
	if w.Customer.Phone != "+919876543210" {
		t.Fatalf("phone = %q, want E.164", w.Customer.Phone)
	}

	if got := w.DisplayStatus(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)); got != domain.WarrantyExpired {
		t.Fatalf("display status after expiry = %s, want EXPIRED", got)
	}
	stored, err := svc.Get(context.Background(), *tenant, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.WarrantyActive {
		t.Fatalf("stored status changed to %s", stored.Status)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.EventWarrantyIssued {
		t.Fatalf("events = %v", got)
	}
}

func TestCreateRejectsUnverifiedTenant(t *testing.T) {
	svc, store, _ := newTestService(t, time.Now())
	tenant := repotest.CreateTenant(t, store, repotest.Unverified())

	_, err := svc.Create(context.Background(), *tenant, sampleInput(30))
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization, got %v", err)
	}
	list, err := svc.List(context.Background(), *tenant, repo.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no warranties, got %d", len(list))
	}
}

func TestCreateExpiresLapsedSubscription(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-24 * time.Hour)
	svc, store, _ := newTestService(t, now)
	tenant := repotest.CreateTenant(t, store, repotest.WithSubscription(domain.SubscriptionActive, &ended))

	_, err := svc.Create(context.Background(), *tenant, sampleInput(90))
	if !errors.Is(err, domain.ErrSubscription) {
		t.Fatalf("expected ErrSubscription, got %v", err)
	}
	reloaded, err := store.GetTenant(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if reloaded.SubscriptionStatus != domain.SubscriptionExpired {
		t.Fatalf("subscription status = %s, want EXPIRED", reloaded.SubscriptionStatus)
	}
}

func TestCreateSubscriptionStatuses(t *testing.T) {
	cases := []struct {
		status domain.SubscriptionStatus
		ok     bool
	}{
		{domain.SubscriptionActive, true},
		{domain.SubscriptionFreeTrial, true},
		{domain.SubscriptionExpired, false},
		{domain.SubscriptionCancelled, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			svc, store, _ := newTestService(t, time.Now())
			tenant := repotest.CreateTenant(t, store, repotest.WithSubscription(tc.status, nil))
			_, err := svc.Create(context.Background(), *tenant, sampleInput(30))
			if tc.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrSubscription) {
				t.Fatalf("expected ErrSubscription, got %v", err)
			}
		})
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, store, _ := newTestService(t, time.Now())
	tenant := repotest.CreateTenant(t, store)

	in := sampleInput(0)
	if _, err := svc.Create(context.Background(), *tenant, in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero duration: expected ErrValidation, got %v", err)
	}
	in = sampleInput(30)
	in.Customer.Phone = "not a phone"
	if _, err := svc.Create(context.Background(), *tenant, in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad phone: expected ErrValidation, got %v", err)
	}
}

func TestCreateCodeCollisionSurfacesConflict(t *testing.T) {
	svc, store, _ := newTestService(t, time.Now())
	svc.newCode = func() string { return "FS-12345" }
	tenant := repotest.CreateTenant(t, store)

	if _, err := svc.Create(context.Background(), *tenant, sampleInput(30)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), *tenant, sampleInput(30)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSetStatusAnyToAnyAndIdempotent(t *testing.T) {
	svc, store, rec := newTestService(t, time.Now())
	tenant := repotest.CreateTenant(t, store)
	ctx := context.Background()

	w, err := svc.Create(ctx, *tenant, sampleInput(30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	steps := []domain.WarrantyStatus{domain.WarrantyVoid, domain.WarrantyActive, domain.WarrantyClaimed, domain.WarrantyExpired, domain.WarrantyActive}
	for _, st := range steps {
		if err := svc.SetStatus(ctx, *tenant, w.ID, st); err != nil {
			t.Fatalf("set %s: %v", st, err)
		}
	}
	before := len(rec.Events())
	if err := svc.SetStatus(ctx, *tenant, w.ID, domain.WarrantyActive); err != nil {
		t.Fatalf("repeat set: %v", err)
	}
	if after := len(rec.Events()); after != before {
		t.Fatalf("repeat set published %d extra events", after-before)
	}
	got, err := svc.Get(ctx, *tenant, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WarrantyActive {
		t.Fatalf("status = %s, want ACTIVE", got.Status)
	}
}

func TestSetStatusForeignTenantIsNotFound(t *testing.T) {
	svc, store, _ := newTestService(t, time.Now())
	owner := repotest.CreateTenant(t, store)
	other := repotest.CreateTenant(t, store)
	ctx := context.Background()

	w, err := svc.Create(ctx, *owner, sampleInput(30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.SetStatus(ctx, *other, w.ID, domain.WarrantyVoid); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := svc.Get(ctx, *owner, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WarrantyActive {
		t.Fatalf("foreign tenant changed status to %s", got.Status)
	}
}

func TestLookupByShortCode(t *testing.T) {
	svc, store, _ := newTestService(t, time.Now())
	tenant := repotest.CreateTenant(t, store)
	ctx := context.Background()

	w, err := svc.Create(ctx, *tenant, sampleInput(30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := svc.Lookup(ctx, " "+w.ShortCode+" ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != w.ID {
		t.Fatalf("lookup returned %s, want %s", found.ID, w.ID)
	}
	if _, err := svc.Lookup(ctx, "FS-99999x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

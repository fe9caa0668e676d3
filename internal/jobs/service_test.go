package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
	"fixshop/internal/events"
	"fixshop/internal/repo"
	"fixshop/internal/repo/repotest"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.JobStatus
}

func (n *recordingNotifier) NotifyJobStatus(_ context.Context, _ domain.Tenant, job domain.JobSheet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, job.Status)
	return nil
}

type fixture struct {
	svc      *Service
	store    *repo.SQLiteRepository
	events   *events.Recorder
	notifier *recordingNotifier
	tenant   *domain.Tenant
}

func newFixture(t *testing.T, opts ...repotest.TenantOption) fixture {
	t.Helper()
	store := repotest.NewSQLite(t)
	rec := &events.Recorder{}
	notifier := &recordingNotifier{}
	svc := NewService(store, rec, nil, repotest.Logger(), Options{
		PhoneRegion: "IN",
		Notifier:    notifier,
	})
	seq := 0
	svc.newCode = func() string {
		seq++
		return fmt.Sprintf("JO-%04d", seq)
	}
	return fixture{
		svc:      svc,
		store:    store,
		events:   rec,
		notifier: notifier,
		tenant:   repotest.CreateTenant(t, store, opts...),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intake(estimate, advance string) domain.NewJobSheet {
	return domain.NewJobSheet{
		Customer:      domain.Customer{Name: "Ravi", Phone: "9876543210"},
		Problem:       "No display",
		EstimatedCost: dec(estimate),
		Advance:       dec(advance),
	}
}

func TestCreateRecordsIntakeAdvanceAsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("1000", "400"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != domain.JobReceived {
		t.Fatalf("status = %s, want RECEIVED", job.Status)
	}
	if job.Category != domain.CategoryGeneral {
		t.Fatalf("category = %s, want tenant default GENERAL", job.Category)
	}
	if len(job.JobCode) != len("JO-0000") || job.JobCode[:3] != "JO-" {
		t.Fatalf("unexpected job code %q", job.JobCode)
	}
	if !job.Advance.Equal(dec("400")) {
		t.Fatalf("advance = %s, want 400", job.Advance)
	}
	payments, err := f.store.ListPayments(ctx, f.tenant.ID, job.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(dec("400")) {
		t.Fatalf("payments = %+v, want one of 400", payments)
	}

	zero, err := f.svc.Create(ctx, *f.tenant, intake("500", "0"))
	if err != nil {
		t.Fatalf("create without advance: %v", err)
	}
	payments, err = f.store.ListPayments(ctx, f.tenant.ID, zero.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("expected no payments for zero advance, got %d", len(payments))
	}
}

func TestCreateRejectsAdvanceAboveEstimate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), *f.tenant, intake("1000", "1200"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateMotorPayload(t *testing.T) {
	f := newFixture(t, repotest.WithCategory(domain.CategoryMotor))
	in := intake("3000", "0")
	in.Technical = []byte(`{
		"power": "2", "powerUnit": "HP", "phase": "single", "speed": 1440, "capacitor": "36uF",
		"coilDetails": {
			"running": {"rows": [{"turns": "60", "wireGauge": "22", "weight": "1.2kg"}], "totalWeight": "1.2kg", "connectionTypes": ["series"]},
			"starting": "garbage"
		},
		"partsReplaced": [{"name": "bearing", "qty": 2, "price": "150"}, "bad"]
	}`)

	job, err := f.svc.Create(context.Background(), *f.tenant, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Category != domain.CategoryMotor {
		t.Fatalf("category = %s, want MOTOR", job.Category)
	}
	reloaded, err := f.svc.Get(context.Background(), *f.tenant, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	motor, ok := reloaded.Technical.(domain.MotorPayload)
	if !ok {
		t.Fatalf("technical payload = %T, want MotorPayload", reloaded.Technical)
	}
	if motor.Power != "2" || motor.PowerUnit != "HP" || motor.Speed != "1440" {
		t.Fatalf("unexpected ratings: %+v", motor)
	}
	if motor.Coils.Running == nil || len(motor.Coils.Running.Rows) != 1 || motor.Coils.Running.Rows[0].Turns != "60" {
		t.Fatalf("running coil not preserved: %+v", motor.Coils.Running)
	}
	if motor.Coils.Starting != nil {
		t.Fatalf("malformed starting coil should degrade to nil, got %+v", motor.Coils.Starting)
	}
	if len(motor.PartsReplaced) != 1 || motor.PartsReplaced[0].Qty != 2 {
		t.Fatalf("parts = %+v", motor.PartsReplaced)
	}
}

func TestCreateNonMotorCarriesNoPayload(t *testing.T) {
	f := newFixture(t)
	in := intake("100", "0")
	in.Category = domain.CategoryMobile
	in.Technical = []byte(`{"power": "2"}`)

	job, err := f.svc.Create(context.Background(), *f.tenant, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := job.Technical.(domain.EmptyPayload); !ok {
		t.Fatalf("technical payload = %T, want EmptyPayload", job.Technical)
	}
}

func TestSetStatusPermitsEveryEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, from := range domain.JobStatuses {
		for _, to := range domain.JobStatuses {
			if from == to {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				job, err := f.svc.Create(ctx, *f.tenant, intake("100", "0"))
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				if from != domain.JobReceived {
					if _, err := f.svc.SetStatus(ctx, *f.tenant, job.ID, from); err != nil {
						t.Fatalf("set %s: %v", from, err)
					}
				}
				got, err := f.svc.SetStatus(ctx, *f.tenant, job.ID, to)
				if err != nil {
					t.Fatalf("set %s: %v", to, err)
				}
				if got.Status != to {
					t.Fatalf("status = %s, want %s", got.Status, to)
				}
			})
		}
	}
}

func TestSetStatusDeliveredSettlesAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("2000", "500"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	delivered, err := f.svc.SetStatus(ctx, *f.tenant, job.ID, domain.JobDelivered)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !delivered.Advance.Equal(dec("2000")) {
		t.Fatalf("advance = %s, want 2000", delivered.Advance)
	}
	reloaded, err := f.svc.Get(ctx, *f.tenant, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reloaded.Advance.Equal(dec("2000")) || !reloaded.Balance().IsZero() {
		t.Fatalf("stored advance = %s balance = %s", reloaded.Advance, reloaded.Balance())
	}
	payments, err := f.store.ListPayments(ctx, f.tenant.ID, job.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(dec("500")) {
		t.Fatalf("settlement must not touch the ledger, got %+v", payments)
	}
}

func TestSetStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("100", "0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.SetStatus(ctx, *f.tenant, job.ID, domain.JobReady); err != nil {
			t.Fatalf("set ready #%d: %v", i, err)
		}
	}
	changes := 0
	for _, typ := range f.events.Types() {
		if typ == events.EventJobStatusChanged {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("status change events = %d, want 1", changes)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != domain.JobReady {
		t.Fatalf("notifications = %v, want [READY]", f.notifier.sent)
	}
}

func TestSetStatusForeignTenantIsNotFound(t *testing.T) {
	f := newFixture(t)
	other := repotest.CreateTenant(t, f.store)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("100", "0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, *other, job.ID, domain.JobCancelled); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, *other, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDetailsRejectsAdvanceAboveEstimate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("1000", "0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.svc.UpdateDetails(ctx, *f.tenant, job.ID, domain.JobDetails{
		Customer:      job.Customer,
		Problem:       job.Problem,
		EstimatedCost: dec("1000"),
		Advance:       dec("1500"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdateDetailsOverwritesFields(t *testing.T) {
	f := newFixture(t, repotest.WithCategory(domain.CategoryMotor))
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("1000", "0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expected := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	model := "Crompton 1HP"
	updated, err := f.svc.UpdateDetails(ctx, *f.tenant, job.ID, domain.JobDetails{
		Customer:      domain.Customer{Name: "Ravi K", Phone: "+91 98765 43210"},
		DeviceModel:   &model,
		Technical:     []byte(`{"power": "1", "coilDetails": 42, "partsReplaced": {"not": "a list"}}`),
		Problem:       "Humming, not starting",
		EstimatedCost: dec("1200"),
		Advance:       dec("300"),
		ExpectedAt:    &expected,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := f.svc.Get(ctx, *f.tenant, updated.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Customer.Name != "Ravi K" || reloaded.DeviceModel == nil || *reloaded.DeviceModel != model {
		t.Fatalf("fields not overwritten: %+v", reloaded)
	}
	if !reloaded.Advance.Equal(dec("300")) || !reloaded.EstimatedCost.Equal(dec("1200")) {
		t.Fatalf("amounts = %s/%s", reloaded.Advance, reloaded.EstimatedCost)
	}
	if reloaded.ExpectedAt == nil || !reloaded.ExpectedAt.Equal(expected) {
		t.Fatalf("expected at = %v", reloaded.ExpectedAt)
	}
	motor, ok := reloaded.Technical.(domain.MotorPayload)
	if !ok {
		t.Fatalf("technical = %T, want MotorPayload", reloaded.Technical)
	}
	if motor.Power != "1" || motor.Coils.Running != nil || len(motor.PartsReplaced) != 0 {
		t.Fatalf("lenient decode produced %+v", motor)
	}
}

func TestDeleteCascadesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, *f.tenant, intake("1000", "250"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, *f.tenant, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, *f.tenant, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	payments, err := f.store.ListPayments(ctx, f.tenant.ID, job.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("payments survived delete: %d", len(payments))
	}
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, *f.tenant, intake("100", "0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Create(ctx, *f.tenant, intake("100", "0")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, *f.tenant, a.ID, domain.JobReady); err != nil {
		t.Fatalf("set ready: %v", err)
	}

	ready, err := f.svc.List(ctx, *f.tenant, repo.ListFilter{Status: "ready"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != a.ID {
		t.Fatalf("ready jobs = %+v", ready)
	}
	if _, err := f.svc.List(ctx, *f.tenant, repo.ListFilter{Status: "LOST"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}

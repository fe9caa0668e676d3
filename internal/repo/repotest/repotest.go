// Package repotest opens throwaway repositories for tests.
package repotest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fixshop/internal/domain"
	"fixshop/internal/repo"
	"fixshop/migrations"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewSQLite returns a migrated repository backed by a file in t.TempDir.
func NewSQLite(t testing.TB) *repo.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	r, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "fixshop.db"), Logger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(r.Close)
	if err := r.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return r
}

// NewPostgres returns a migrated repository in a fresh schema of the database
// named by DATABASE_URL. The schema is dropped when the test ends. Tests are
// skipped when DATABASE_URL is unset.
func NewPostgres(t testing.TB) *repo.PostgresRepository {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run postgres integration tests")
	}
	ctx := context.Background()

	schema := "fixshop_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ident := pgx.Identifier{schema}.Sanitize()
	admin, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		admin.Close(ctx)
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.Exec(ctx, "DROP SCHEMA "+ident+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		admin.Close(ctx)
	})

	r, err := repo.New(ctx, databaseURL, schema, Logger())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(r.Close)
	if err := r.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return r
}

// TenantOption tweaks a tenant before it is inserted.
type TenantOption func(*domain.Tenant)

// WithCategory sets the tenant's default category.
func WithCategory(c domain.Category) TenantOption {
	return func(t *domain.Tenant) { t.Category = c }
}

// WithSubscription sets the subscription status and end date.
func WithSubscription(status domain.SubscriptionStatus, endsAt *time.Time) TenantOption {
	return func(t *domain.Tenant) {
		t.SubscriptionStatus = status
		t.SubscriptionEndsAt = endsAt
	}
}

// Unverified clears the verified flag.
func Unverified() TenantOption {
	return func(t *domain.Tenant) { t.Verified = false }
}

// WithTimezone sets the tenant's IANA zone.
func WithTimezone(tz string) TenantOption {
	return func(t *domain.Tenant) { t.Timezone = tz }
}

// WithPIN stores value as the tenant's PIN column verbatim.
func WithPIN(value string) TenantOption {
	return func(t *domain.Tenant) { t.PINHash = &value }
}

// CreateTenant inserts a verified, active GENERAL tenant.
func CreateTenant(t testing.TB, r repo.Repository, opts ...TenantOption) *domain.Tenant {
	t.Helper()
	tenant := domain.Tenant{
		ID:                 uuid.NewString(),
		Name:               "Test Repairs",
		Verified:           true,
		SubscriptionStatus: domain.SubscriptionActive,
		Category:           domain.CategoryGeneral,
	}
	for _, opt := range opts {
		opt(&tenant)
	}
	inserted, err := r.InsertTenant(context.Background(), tenant)
	if err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	return inserted
}

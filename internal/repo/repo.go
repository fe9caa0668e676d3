package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

// PostgresRepository provides typed access to the shop data in Postgres.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// pgQuerier is implemented by both the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations applies the postgres migrations found in filesystem.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	sub, err := fs.Sub(filesystem, "postgres")
	if err != nil {
		return fmt.Errorf("open postgres migrations: %w", err)
	}
	return ApplyMigrations(ctx, r.pool, sub)
}

// InTx executes fn within a database transaction.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// -- Tenants --

const pgTenantColumns = `id, name, verified, subscription_status, subscription_ends_at, category, pin_hash, timezone, created_at, updated_at`

// InsertTenant creates a tenant record.
func (r *PostgresRepository) InsertTenant(ctx context.Context, t domain.Tenant) (*domain.Tenant, error) {
	const q = `
INSERT INTO tenants (id, name, verified, subscription_status, subscription_ends_at, category, pin_hash, timezone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + pgTenantColumns + `;
`
	row := r.pool.QueryRow(ctx, q,
		t.ID,
		t.Name,
		t.Verified,
		string(t.SubscriptionStatus),
		t.SubscriptionEndsAt,
		string(t.Category),
		t.PINHash,
		t.Timezone,
	)
	inserted, err := scanPgTenant(row)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return inserted, nil
}

// GetTenant retrieves a tenant by id.
func (r *PostgresRepository) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	const q = `SELECT ` + pgTenantColumns + ` FROM tenants WHERE id = $1 LIMIT 1;`
	t, err := scanPgTenant(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// UpdateSubscriptionStatus records a new subscription status for the tenant.
func (r *PostgresRepository) UpdateSubscriptionStatus(ctx context.Context, tenantID string, status domain.SubscriptionStatus) error {
	const q = `UPDATE tenants SET subscription_status = $2, updated_at = NOW() WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update subscription status %s: %w", tenantID, domain.ErrNotFound)
	}
	return nil
}

// SetTenantPIN swaps the PIN hash when the stored value still matches current.
func (r *PostgresRepository) SetTenantPIN(ctx context.Context, tenantID string, current *string, next string) error {
	const q = `
UPDATE tenants SET pin_hash = $3, updated_at = NOW()
WHERE id = $1 AND pin_hash IS NOT DISTINCT FROM $2;
`
	ct, err := r.pool.Exec(ctx, q, tenantID, current, next)
	if err != nil {
		return fmt.Errorf("set tenant pin: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set tenant pin %s: %w", tenantID, domain.ErrConflict)
	}
	return nil
}

func scanPgTenant(row scanner) (*domain.Tenant, error) {
	var (
		t        domain.Tenant
		status   string
		category string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Verified, &status, &t.SubscriptionEndsAt, &category, &t.PINHash, &t.Timezone, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.SubscriptionStatus = domain.SubscriptionStatus(status)
	t.Category = domain.Category(category)
	return &t, nil
}

// -- Warranties --

const pgWarrantyColumns = `id, tenant_id, short_code, customer_name, customer_phone, customer_address, device_model, repair_type,
repair_cost, duration_days, issued_at, expires_at, status, private_note, created_at, updated_at`

// InsertWarranty stores a newly issued warranty.
func (r *PostgresRepository) InsertWarranty(ctx context.Context, w domain.Warranty) (*domain.Warranty, error) {
	const q = `
INSERT INTO warranties (id, tenant_id, short_code, customer_name, customer_phone, customer_address, device_model,
    repair_type, repair_cost, duration_days, issued_at, expires_at, status, private_note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + pgWarrantyColumns + `;
`
	row := r.pool.QueryRow(ctx, q,
		w.ID,
		w.TenantID,
		w.ShortCode,
		w.Customer.Name,
		w.Customer.Phone,
		w.Customer.Address,
		w.DeviceModel,
		w.RepairType,
		nullDecimal(w.RepairCost),
		w.DurationDays,
		w.IssuedAt,
		w.ExpiresAt,
		string(w.Status),
		w.PrivateNote,
	)
	inserted, err := scanPgWarranty(row)
	if err != nil {
		return nil, wrapUnique("insert warranty", err)
	}
	return inserted, nil
}

// GetWarranty retrieves a warranty owned by tenantID.
func (r *PostgresRepository) GetWarranty(ctx context.Context, tenantID, id string) (*domain.Warranty, error) {
	const q = `SELECT ` + pgWarrantyColumns + ` FROM warranties WHERE id = $1 AND tenant_id = $2 LIMIT 1;`
	w, err := scanPgWarranty(r.pool.QueryRow(ctx, q, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get warranty %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get warranty: %w", err)
	}
	return w, nil
}

// GetWarrantyByCode retrieves a warranty by its public short code.
func (r *PostgresRepository) GetWarrantyByCode(ctx context.Context, code string) (*domain.Warranty, error) {
	const q = `SELECT ` + pgWarrantyColumns + ` FROM warranties WHERE short_code = $1 LIMIT 1;`
	w, err := scanPgWarranty(r.pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get warranty by code %s: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get warranty by code: %w", err)
	}
	return w, nil
}

// ListWarranties returns the tenant's warranties, newest first.
func (r *PostgresRepository) ListWarranties(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Warranty, error) {
	const q = `
SELECT ` + pgWarrantyColumns + `
FROM warranties
WHERE tenant_id = $1
  AND ($2::text IS NULL OR customer_name ILIKE $2 OR customer_phone ILIKE $2 OR short_code ILIKE $2 OR device_model ILIKE $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY issued_at DESC
LIMIT $4 OFFSET $5;
`
	return r.queryWarranties(ctx, "list warranties", q, tenantID, filter.pattern(), filter.status(), filter.limit(), filter.offset())
}

// UpdateWarrantyStatus sets the stored status of a warranty owned by tenantID.
func (r *PostgresRepository) UpdateWarrantyStatus(ctx context.Context, tenantID, id string, status domain.WarrantyStatus) error {
	const q = `UPDATE warranties SET status = $3, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`
	ct, err := r.pool.Exec(ctx, q, id, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("update warranty status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update warranty status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListWarrantiesIssuedSince returns every warranty issued at or after since.
func (r *PostgresRepository) ListWarrantiesIssuedSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Warranty, error) {
	const q = `
SELECT ` + pgWarrantyColumns + `
FROM warranties
WHERE tenant_id = $1 AND issued_at >= $2
ORDER BY issued_at ASC;
`
	return r.queryWarranties(ctx, "list warranties issued since", q, tenantID, since)
}

// CountWarranties counts every warranty the tenant has issued.
func (r *PostgresRepository) CountWarranties(ctx context.Context, tenantID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM warranties WHERE tenant_id = $1`
	var n int64
	if err := r.pool.QueryRow(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count warranties: %w", err)
	}
	return n, nil
}

// SumWarrantyCost sums repair cost over every warranty the tenant has issued.
func (r *PostgresRepository) SumWarrantyCost(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(repair_cost), 0)::text FROM warranties WHERE tenant_id = $1`
	var total string
	if err := r.pool.QueryRow(ctx, q, tenantID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum warranty cost: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse warranty cost sum: %w", err)
	}
	return d, nil
}

// CountJobsByStatus groups the tenant's job sheets by status.
func (r *PostgresRepository) CountJobsByStatus(ctx context.Context, tenantID string) (map[domain.JobStatus]int64, error) {
	const q = `SELECT status, COUNT(*) FROM job_sheets WHERE tenant_id = $1 GROUP BY status`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job status counts: %w", err)
	}
	return counts, nil
}

func (r *PostgresRepository) queryWarranties(ctx context.Context, op, q string, args ...any) ([]domain.Warranty, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Warranty
	for rows.Next() {
		w, err := scanPgWarranty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}

func scanPgWarranty(row scanner) (*domain.Warranty, error) {
	var (
		w      domain.Warranty
		cost   decimal.NullDecimal
		status string
	)
	if err := row.Scan(&w.ID, &w.TenantID, &w.ShortCode, &w.Customer.Name, &w.Customer.Phone, &w.Customer.Address,
		&w.DeviceModel, &w.RepairType, &cost, &w.DurationDays, &w.IssuedAt, &w.ExpiresAt, &status, &w.PrivateNote,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if cost.Valid {
		c := cost.Decimal
		w.RepairCost = &c
	}
	w.Status = domain.WarrantyStatus(status)
	return &w, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

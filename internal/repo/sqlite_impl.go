package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

// -- Tenants --

const liteTenantColumns = `id, name, verified, subscription_status, subscription_ends_at, category, pin_hash, timezone, created_at, updated_at`

func (r *SQLiteRepository) InsertTenant(ctx context.Context, t domain.Tenant) (*domain.Tenant, error) {
	now := millis(time.Now())
	const q = `
INSERT INTO tenants (id, name, verified, subscription_status, subscription_ends_at, category, pin_hash, timezone, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + liteTenantColumns + `;
`
	row := r.db.QueryRowContext(ctx, q,
		t.ID,
		t.Name,
		t.Verified,
		string(t.SubscriptionStatus),
		nullMillis(t.SubscriptionEndsAt),
		string(t.Category),
		t.PINHash,
		t.Timezone,
		now,
		now,
	)
	inserted, err := scanLiteTenant(row)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	const q = `SELECT ` + liteTenantColumns + ` FROM tenants WHERE id = ? LIMIT 1;`
	t, err := scanLiteTenant(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateSubscriptionStatus(ctx context.Context, tenantID string, status domain.SubscriptionStatus) error {
	const q = `UPDATE tenants SET subscription_status = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, string(status), millis(time.Now()), tenantID)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return requireAffected(res, "update subscription status", tenantID, domain.ErrNotFound)
}

func (r *SQLiteRepository) SetTenantPIN(ctx context.Context, tenantID string, current *string, next string) error {
	const q = `UPDATE tenants SET pin_hash = ?, updated_at = ? WHERE id = ? AND pin_hash IS ?`
	res, err := r.db.ExecContext(ctx, q, next, millis(time.Now()), tenantID, current)
	if err != nil {
		return fmt.Errorf("set tenant pin: %w", err)
	}
	return requireAffected(res, "set tenant pin", tenantID, domain.ErrConflict)
}

func scanLiteTenant(row scanner) (*domain.Tenant, error) {
	var (
		t                    domain.Tenant
		status, category     string
		endsAt               sql.NullInt64
		pinHash              sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Verified, &status, &endsAt, &category, &pinHash, &t.Timezone, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.SubscriptionStatus = domain.SubscriptionStatus(status)
	t.SubscriptionEndsAt = fromNullMillis(endsAt)
	t.Category = domain.Category(category)
	t.PINHash = fromNullString(pinHash)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

// -- Warranties --

const liteWarrantyColumns = `id, tenant_id, short_code, customer_name, customer_phone, customer_address, device_model, repair_type,
repair_cost, duration_days, issued_at, expires_at, status, private_note, created_at, updated_at`

func (r *SQLiteRepository) InsertWarranty(ctx context.Context, w domain.Warranty) (*domain.Warranty, error) {
	now := millis(time.Now())
	const q = `
INSERT INTO warranties (id, tenant_id, short_code, customer_name, customer_phone, customer_address, device_model,
    repair_type, repair_cost, duration_days, issued_at, expires_at, status, private_note, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + liteWarrantyColumns + `;
`
	row := r.db.QueryRowContext(ctx, q,
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
		millis(w.IssuedAt),
		millis(w.ExpiresAt),
		string(w.Status),
		w.PrivateNote,
		now,
		now,
	)
	inserted, err := scanLiteWarranty(row)
	if err != nil {
		return nil, wrapUnique("insert warranty", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) GetWarranty(ctx context.Context, tenantID, id string) (*domain.Warranty, error) {
	const q = `SELECT ` + liteWarrantyColumns + ` FROM warranties WHERE id = ? AND tenant_id = ? LIMIT 1;`
	w, err := scanLiteWarranty(r.db.QueryRowContext(ctx, q, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get warranty %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get warranty: %w", err)
	}
	return w, nil
}

func (r *SQLiteRepository) GetWarrantyByCode(ctx context.Context, code string) (*domain.Warranty, error) {
	const q = `SELECT ` + liteWarrantyColumns + ` FROM warranties WHERE short_code = ? LIMIT 1;`
	w, err := scanLiteWarranty(r.db.QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get warranty by code %s: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get warranty by code: %w", err)
	}
	return w, nil
}

func (r *SQLiteRepository) ListWarranties(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Warranty, error) {
	const q = `
SELECT ` + liteWarrantyColumns + `
FROM warranties
WHERE tenant_id = ?1
  AND (?2 IS NULL OR customer_name LIKE ?2 OR customer_phone LIKE ?2 OR short_code LIKE ?2 OR device_model LIKE ?2)
  AND (?3 IS NULL OR status = ?3)
ORDER BY issued_at DESC
LIMIT ?4 OFFSET ?5;
`
	return r.queryWarranties(ctx, "list warranties", q, tenantID, filter.pattern(), filter.status(), filter.limit(), filter.offset())
}

func (r *SQLiteRepository) UpdateWarrantyStatus(ctx context.Context, tenantID, id string, status domain.WarrantyStatus) error {
	const q = `UPDATE warranties SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`
	res, err := r.db.ExecContext(ctx, q, string(status), millis(time.Now()), id, tenantID)
	if err != nil {
		return fmt.Errorf("update warranty status: %w", err)
	}
	return requireAffected(res, "update warranty status", id, domain.ErrNotFound)
}

func (r *SQLiteRepository) ListWarrantiesIssuedSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Warranty, error) {
	const q = `
SELECT ` + liteWarrantyColumns + `
FROM warranties
WHERE tenant_id = ? AND issued_at >= ?
ORDER BY issued_at ASC;
`
	return r.queryWarranties(ctx, "list warranties issued since", q, tenantID, millis(since))
}

func (r *SQLiteRepository) CountWarranties(ctx context.Context, tenantID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM warranties WHERE tenant_id = ?`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count warranties: %w", err)
	}
	return n, nil
}

// SumWarrantyCost adds the costs in Go; SQLite's SUM would go through floats.
func (r *SQLiteRepository) SumWarrantyCost(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	const q = `SELECT repair_cost FROM warranties WHERE tenant_id = ? AND repair_cost IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum warranty cost: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var cost decimal.Decimal
		if err := rows.Scan(&cost); err != nil {
			return decimal.Zero, fmt.Errorf("scan warranty cost: %w", err)
		}
		total = total.Add(cost)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate warranty costs: %w", err)
	}
	return total, nil
}

func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context, tenantID string) (map[domain.JobStatus]int64, error) {
	const q = `SELECT status, COUNT(*) FROM job_sheets WHERE tenant_id = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
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

func (r *SQLiteRepository) queryWarranties(ctx context.Context, op, q string, args ...any) ([]domain.Warranty, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Warranty
	for rows.Next() {
		w, err := scanLiteWarranty(rows)
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

func scanLiteWarranty(row scanner) (*domain.Warranty, error) {
	var (
		w                    domain.Warranty
		address, note        sql.NullString
		cost                 decimal.NullDecimal
		status               string
		issuedAt, expiresAt  int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&w.ID, &w.TenantID, &w.ShortCode, &w.Customer.Name, &w.Customer.Phone, &address,
		&w.DeviceModel, &w.RepairType, &cost, &w.DurationDays, &issuedAt, &expiresAt, &status, &note,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Customer.Address = fromNullString(address)
	if cost.Valid {
		c := cost.Decimal
		w.RepairCost = &c
	}
	w.IssuedAt = fromMillis(issuedAt)
	w.ExpiresAt = fromMillis(expiresAt)
	w.Status = domain.WarrantyStatus(status)
	w.PrivateNote = fromNullString(note)
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return &w, nil
}

// -- Job sheets --

const liteJobColumns = `id, tenant_id, job_code, customer_name, customer_phone, customer_address, category, device_brand,
device_model, technical_details, problem, accessories, status, received_at, expected_at, estimated_cost, advance,
created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, tenantID, id string) (*domain.JobSheet, error) {
	return getLiteJob(ctx, r.db, tenantID, id)
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, tenantID string, filter ListFilter) ([]domain.JobSheet, error) {
	const q = `
SELECT ` + liteJobColumns + `
FROM job_sheets
WHERE tenant_id = ?1
  AND (?2 IS NULL OR customer_name LIKE ?2 OR customer_phone LIKE ?2 OR job_code LIKE ?2 OR device_model LIKE ?2)
  AND (?3 IS NULL OR status = ?3)
ORDER BY received_at DESC
LIMIT ?4 OFFSET ?5;
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, filter.pattern(), filter.status(), filter.limit(), filter.offset())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobSheet
	for rows.Next() {
		job, err := scanLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func (r *SQLiteRepository) UpdateJobDetails(ctx context.Context, job domain.JobSheet) error {
	technical, err := technicalParam(job.Technical)
	if err != nil {
		return err
	}
	const q = `
UPDATE job_sheets
SET customer_name = ?,
    customer_phone = ?,
    customer_address = ?,
    device_brand = ?,
    device_model = ?,
    technical_details = ?,
    problem = ?,
    accessories = ?,
    estimated_cost = ?,
    advance = ?,
    expected_at = ?,
    updated_at = ?
WHERE id = ? AND tenant_id = ?;
`
	res, err := r.db.ExecContext(ctx, q,
		job.Customer.Name,
		job.Customer.Phone,
		job.Customer.Address,
		job.DeviceBrand,
		job.DeviceModel,
		technical,
		job.Problem,
		job.Accessories,
		job.EstimatedCost.String(),
		job.Advance.String(),
		nullMillis(job.ExpectedAt),
		millis(time.Now()),
		job.ID,
		job.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update job details: %w", err)
	}
	return requireAffected(res, "update job details", job.ID, domain.ErrNotFound)
}

// DeleteJob removes the job's payments explicitly so databases opened
// without foreign key enforcement stay consistent.
func (r *SQLiteRepository) DeleteJob(ctx context.Context, tenantID, id string) error {
	return r.withTx(ctx, func(lt *sqliteTx) error {
		if _, err := lt.LockJob(ctx, tenantID, id); err != nil {
			return err
		}
		if _, err := lt.tx.ExecContext(ctx, `DELETE FROM payments WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete job payments: %w", err)
		}
		if _, err := lt.tx.ExecContext(ctx, `DELETE FROM job_sheets WHERE id = ? AND tenant_id = ?`, id, tenantID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, tenantID, jobID string) ([]domain.Payment, error) {
	const q = `
SELECT p.id, p.job_id, p.amount, p.paid_at, p.note, p.created_at
FROM payments p
JOIN job_sheets j ON j.id = p.job_id
WHERE p.job_id = ? AND j.tenant_id = ?
ORDER BY p.paid_at ASC, p.created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanLitePayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// sqliteTx implements Tx on a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertJob(ctx context.Context, job domain.JobSheet) (*domain.JobSheet, error) {
	technical, err := technicalParam(job.Technical)
	if err != nil {
		return nil, err
	}
	now := millis(time.Now())
	const q = `
INSERT INTO job_sheets (id, tenant_id, job_code, customer_name, customer_phone, customer_address, category,
    device_brand, device_model, technical_details, problem, accessories, status, received_at, expected_at,
    estimated_cost, advance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + liteJobColumns + `;
`
	row := t.tx.QueryRowContext(ctx, q,
		job.ID,
		job.TenantID,
		job.JobCode,
		job.Customer.Name,
		job.Customer.Phone,
		job.Customer.Address,
		string(job.Category),
		job.DeviceBrand,
		job.DeviceModel,
		technical,
		job.Problem,
		job.Accessories,
		string(job.Status),
		millis(job.ReceivedAt),
		nullMillis(job.ExpectedAt),
		job.EstimatedCost.String(),
		job.Advance.String(),
		now,
		now,
	)
	inserted, err := scanLiteJob(row)
	if err != nil {
		return nil, wrapUnique("insert job", err)
	}
	return inserted, nil
}

// LockJob touches the row first so the transaction holds the write lock
// before it reads.
func (t *sqliteTx) LockJob(ctx context.Context, tenantID, jobID string) (*domain.JobSheet, error) {
	const q = `UPDATE job_sheets SET updated_at = updated_at WHERE id = ? AND tenant_id = ?`
	res, err := t.tx.ExecContext(ctx, q, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	if err := requireAffected(res, "lock job", jobID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return getLiteJob(ctx, t.tx, tenantID, jobID)
}

func (t *sqliteTx) SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	const q = `UPDATE job_sheets SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, string(status), millis(time.Now()), jobID); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func (t *sqliteTx) SetJobAdvance(ctx context.Context, jobID string, advance decimal.Decimal) error {
	const q = `UPDATE job_sheets SET advance = ?, updated_at = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, advance.String(), millis(time.Now()), jobID); err != nil {
		return fmt.Errorf("set job advance: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	const q = `
INSERT INTO payments (id, job_id, amount, paid_at, note, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, job_id, amount, paid_at, note, created_at;
`
	row := t.tx.QueryRowContext(ctx, q, p.ID, p.JobID, p.Amount.String(), millis(p.PaidAt), p.Note, millis(time.Now()))
	inserted, err := scanLitePayment(row)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return inserted, nil
}

func (t *sqliteTx) DeletePayment(ctx context.Context, jobID, paymentID string) error {
	const q = `DELETE FROM payments WHERE id = ? AND job_id = ?`
	res, err := t.tx.ExecContext(ctx, q, paymentID, jobID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return requireAffected(res, "delete payment", paymentID, domain.ErrNotFound)
}

func (t *sqliteTx) PaymentAmounts(ctx context.Context, jobID string) ([]decimal.Decimal, error) {
	const q = `SELECT amount FROM payments WHERE job_id = ?`
	rows, err := t.tx.QueryContext(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("list payment amounts: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var a decimal.Decimal
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan payment amount: %w", err)
		}
		amounts = append(amounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment amounts: %w", err)
	}
	return amounts, nil
}

func getLiteJob(ctx context.Context, q sqlQuerier, tenantID, id string) (*domain.JobSheet, error) {
	const query = `SELECT ` + liteJobColumns + ` FROM job_sheets WHERE id = ? AND tenant_id = ? LIMIT 1;`
	job, err := scanLiteJob(q.QueryRowContext(ctx, query, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func scanLiteJob(row scanner) (*domain.JobSheet, error) {
	var (
		j                                  domain.JobSheet
		address, brand, model, accessories sql.NullString
		technical                          sql.NullString
		category, status                   string
		receivedAt, createdAt, updatedAt   int64
		expectedAt                         sql.NullInt64
	)
	if err := row.Scan(&j.ID, &j.TenantID, &j.JobCode, &j.Customer.Name, &j.Customer.Phone, &address,
		&category, &brand, &model, &technical, &j.Problem, &accessories, &status, &receivedAt,
		&expectedAt, &j.EstimatedCost, &j.Advance, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Customer.Address = fromNullString(address)
	j.Category = domain.Category(category)
	j.DeviceBrand = fromNullString(brand)
	j.DeviceModel = fromNullString(model)
	j.Technical = domain.DecodeTechnicalPayload(j.Category, []byte(technical.String))
	j.Accessories = fromNullString(accessories)
	j.Status = domain.JobStatus(status)
	j.ReceivedAt = fromMillis(receivedAt)
	j.ExpectedAt = fromNullMillis(expectedAt)
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return &j, nil
}

func scanLitePayment(row scanner) (*domain.Payment, error) {
	var (
		p                 domain.Payment
		note              sql.NullString
		paidAt, createdAt int64
	)
	if err := row.Scan(&p.ID, &p.JobID, &p.Amount, &paidAt, &note, &createdAt); err != nil {
		return nil, err
	}
	p.PaidAt = fromMillis(paidAt)
	p.Note = fromNullString(note)
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func requireAffected(res sql.Result, op, id string, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, sentinel)
	}
	return nil
}

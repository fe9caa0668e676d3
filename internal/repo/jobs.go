package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

const pgJobColumns = `id, tenant_id, job_code, customer_name, customer_phone, customer_address, category, device_brand,
device_model, technical_details, problem, accessories, status, received_at, expected_at, estimated_cost, advance,
created_at, updated_at`

// GetJob retrieves a job sheet owned by tenantID.
func (r *PostgresRepository) GetJob(ctx context.Context, tenantID, id string) (*domain.JobSheet, error) {
	return getPgJob(ctx, r.pool, tenantID, id, false)
}

// ListJobs returns the tenant's job sheets, newest intake first.
func (r *PostgresRepository) ListJobs(ctx context.Context, tenantID string, filter ListFilter) ([]domain.JobSheet, error) {
	const q = `
SELECT ` + pgJobColumns + `
FROM job_sheets
WHERE tenant_id = $1
  AND ($2::text IS NULL OR customer_name ILIKE $2 OR customer_phone ILIKE $2 OR job_code ILIKE $2 OR device_model ILIKE $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY received_at DESC
LIMIT $4 OFFSET $5;
`
	rows, err := r.pool.Query(ctx, q, tenantID, filter.pattern(), filter.status(), filter.limit(), filter.offset())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobSheet
	for rows.Next() {
		job, err := scanPgJob(rows)
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

// UpdateJobDetails overwrites every mutable field of the job.
func (r *PostgresRepository) UpdateJobDetails(ctx context.Context, job domain.JobSheet) error {
	technical, err := technicalParam(job.Technical)
	if err != nil {
		return err
	}
	const q = `
UPDATE job_sheets
SET customer_name = $3,
    customer_phone = $4,
    customer_address = $5,
    device_brand = $6,
    device_model = $7,
    technical_details = $8,
    problem = $9,
    accessories = $10,
    estimated_cost = $11,
    advance = $12,
    expected_at = $13,
    updated_at = NOW()
WHERE id = $1 AND tenant_id = $2;
`
	ct, err := r.pool.Exec(ctx, q,
		job.ID,
		job.TenantID,
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
		job.ExpectedAt,
	)
	if err != nil {
		return fmt.Errorf("update job details: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update job details %s: %w", job.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteJob removes a job sheet; its payments go with it through the foreign key.
func (r *PostgresRepository) DeleteJob(ctx context.Context, tenantID, id string) error {
	const q = `DELETE FROM job_sheets WHERE id = $1 AND tenant_id = $2`
	ct, err := r.pool.Exec(ctx, q, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListPayments returns the ledger of a job owned by tenantID, oldest first.
func (r *PostgresRepository) ListPayments(ctx context.Context, tenantID, jobID string) ([]domain.Payment, error) {
	const q = `
SELECT p.id, p.job_id, p.amount, p.paid_at, p.note, p.created_at
FROM payments p
JOIN job_sheets j ON j.id = p.job_id
WHERE p.job_id = $1 AND j.tenant_id = $2
ORDER BY p.paid_at ASC, p.created_at ASC;
`
	rows, err := r.pool.Query(ctx, q, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.JobID, &p.Amount, &p.PaidAt, &p.Note, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertJob(ctx context.Context, job domain.JobSheet) (*domain.JobSheet, error) {
	technical, err := technicalParam(job.Technical)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO job_sheets (id, tenant_id, job_code, customer_name, customer_phone, customer_address, category,
    device_brand, device_model, technical_details, problem, accessories, status, received_at, expected_at,
    estimated_cost, advance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING ` + pgJobColumns + `;
`
	row := t.tx.QueryRow(ctx, q,
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
		job.ReceivedAt,
		job.ExpectedAt,
		job.EstimatedCost.String(),
		job.Advance.String(),
	)
	inserted, err := scanPgJob(row)
	if err != nil {
		return nil, wrapUnique("insert job", err)
	}
	return inserted, nil
}

func (t *pgTx) LockJob(ctx context.Context, tenantID, jobID string) (*domain.JobSheet, error) {
	return getPgJob(ctx, t.tx, tenantID, jobID, true)
}

func (t *pgTx) SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	const q = `UPDATE job_sheets SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := t.tx.Exec(ctx, q, jobID, string(status)); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func (t *pgTx) SetJobAdvance(ctx context.Context, jobID string, advance decimal.Decimal) error {
	const q = `UPDATE job_sheets SET advance = $2, updated_at = NOW() WHERE id = $1`
	if _, err := t.tx.Exec(ctx, q, jobID, advance.String()); err != nil {
		return fmt.Errorf("set job advance: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	const q = `
INSERT INTO payments (id, job_id, amount, paid_at, note)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, job_id, amount, paid_at, note, created_at;
`
	var inserted domain.Payment
	err := t.tx.QueryRow(ctx, q, p.ID, p.JobID, p.Amount.String(), p.PaidAt, p.Note).
		Scan(&inserted.ID, &inserted.JobID, &inserted.Amount, &inserted.PaidAt, &inserted.Note, &inserted.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return &inserted, nil
}

func (t *pgTx) DeletePayment(ctx context.Context, jobID, paymentID string) error {
	const q = `DELETE FROM payments WHERE id = $1 AND job_id = $2`
	ct, err := t.tx.Exec(ctx, q, paymentID, jobID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete payment %s: %w", paymentID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) PaymentAmounts(ctx context.Context, jobID string) ([]decimal.Decimal, error) {
	const q = `SELECT amount FROM payments WHERE job_id = $1`
	rows, err := t.tx.Query(ctx, q, jobID)
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

func getPgJob(ctx context.Context, q pgQuerier, tenantID, id string, forUpdate bool) (*domain.JobSheet, error) {
	query := `SELECT ` + pgJobColumns + ` FROM job_sheets WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	job, err := scanPgJob(q.QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func scanPgJob(row scanner) (*domain.JobSheet, error) {
	var (
		j         domain.JobSheet
		category  string
		status    string
		technical []byte
	)
	if err := row.Scan(&j.ID, &j.TenantID, &j.JobCode, &j.Customer.Name, &j.Customer.Phone, &j.Customer.Address,
		&category, &j.DeviceBrand, &j.DeviceModel, &technical, &j.Problem, &j.Accessories, &status, &j.ReceivedAt,
		&j.ExpectedAt, &j.EstimatedCost, &j.Advance, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Category = domain.Category(category)
	j.Status = domain.JobStatus(status)
	j.Technical = domain.DecodeTechnicalPayload(j.Category, technical)
	return &j, nil
}

package repo

import (
	"context"
	"io/fs"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Tenants
	InsertTenant(ctx context.Context, tenant domain.Tenant) (*domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	UpdateSubscriptionStatus(ctx context.Context, tenantID string, status domain.SubscriptionStatus) error
	// SetTenantPIN replaces the stored PIN hash only if it still equals current.
	SetTenantPIN(ctx context.Context, tenantID string, current *string, next string) error

	// Warranties
	InsertWarranty(ctx context.Context, w domain.Warranty) (*domain.Warranty, error)
	GetWarranty(ctx context.Context, tenantID, id string) (*domain.Warranty, error)
	GetWarrantyByCode(ctx context.Context, code string) (*domain.Warranty, error)
	ListWarranties(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Warranty, error)
	UpdateWarrantyStatus(ctx context.Context, tenantID, id string, status domain.WarrantyStatus) error

	// Reporting
	ListWarrantiesIssuedSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Warranty, error)
	CountWarranties(ctx context.Context, tenantID string) (int64, error)
	SumWarrantyCost(ctx context.Context, tenantID string) (decimal.Decimal, error)
	CountJobsByStatus(ctx context.Context, tenantID string) (map[domain.JobStatus]int64, error)

	// Job sheets
	GetJob(ctx context.Context, tenantID, id string) (*domain.JobSheet, error)
	ListJobs(ctx context.Context, tenantID string, filter ListFilter) ([]domain.JobSheet, error)
	UpdateJobDetails(ctx context.Context, job domain.JobSheet) error
	DeleteJob(ctx context.Context, tenantID, id string) error
	ListPayments(ctx context.Context, tenantID, jobID string) ([]domain.Payment, error)

	// InTx runs fn in a single transaction. Writers that lock the same job
	// row through the Tx are serialised.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of job and ledger operations available inside InTx.
type Tx interface {
	InsertJob(ctx context.Context, job domain.JobSheet) (*domain.JobSheet, error)
	// LockJob loads a job owned by tenantID and holds its row until commit.
	LockJob(ctx context.Context, tenantID, jobID string) (*domain.JobSheet, error)
	SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error
	SetJobAdvance(ctx context.Context, jobID string, advance decimal.Decimal) error
	InsertPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error)
	DeletePayment(ctx context.Context, jobID, paymentID string) error
	PaymentAmounts(ctx context.Context, jobID string) ([]decimal.Decimal, error)
}

// ListFilter narrows list queries. Zero values mean no restriction.
type ListFilter struct {
	Query  string
	Status string
	Limit  int
	Offset int
}

const defaultListLimit = 50

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

func (f ListFilter) pattern() any {
	if f.Query == "" {
		return nil
	}
	return "%" + f.Query + "%"
}

func (f ListFilter) status() any {
	if f.Status == "" {
		return nil
	}
	return f.Status
}

package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks-core/domains/onboarding/be/service"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
)

const getQuery = `
SELECT current_step, completed_steps, is_free_plan, last_updated
FROM onboarding_progress
WHERE tenant_id = $1`

// The WHERE clause makes completion monotonic at the database level: a row
// already at 'complete' only accepts writes that keep it complete, so a slow
// concurrent tab can never regress a finished tenant.
const saveQuery = `
INSERT INTO onboarding_progress (tenant_id, current_step, completed_steps, is_free_plan, last_updated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant_id) DO UPDATE SET
    current_step = EXCLUDED.current_step,
    completed_steps = EXCLUDED.completed_steps,
    is_free_plan = EXCLUDED.is_free_plan,
    last_updated = EXCLUDED.last_updated
WHERE onboarding_progress.current_step <> 'complete'
   OR EXCLUDED.current_step = 'complete'`

// Repository stores onboarding progress in the tenant-scoped table.
type Repository struct {
	db *persistence.TenantDB
}

// New constructs a Repository over the tenant data access layer.
func New(db *persistence.TenantDB) *Repository {
	if db == nil {
		panic("tenant db is required")
	}
	return &Repository{db: db}
}

// SeedDefaults inserts the initial progress row for a freshly provisioned
// tenant. Idempotent so provisioning retries stay safe.
func SeedDefaults(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO onboarding_progress (tenant_id) VALUES ($1) ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID)
	return err
}

// Get returns the tenant's progress record; Exists is false when the tenant
// has no row yet.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID) (service.Record, error) {
	var rec service.Record
	err := r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var currentStep string
		var completed []string
		if err := tx.QueryRow(ctx, getQuery, tenantID).
			Scan(&currentStep, &completed, &rec.IsFreePlan, &rec.LastUpdated); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		rec.Exists = true
		rec.CurrentStep = service.StepFromString(currentStep)
		rec.CompletedSteps = make([]service.Step, 0, len(completed))
		for _, step := range completed {
			rec.CompletedSteps = append(rec.CompletedSteps, service.StepFromString(step))
		}
		return nil
	})
	if err != nil {
		return service.Record{}, err
	}
	return rec, nil
}

// Save upserts the tenant's progress record.
func (r *Repository) Save(ctx context.Context, tenantID uuid.UUID, rec service.Record) error {
	completed := make([]string, 0, len(rec.CompletedSteps))
	for _, step := range rec.CompletedSteps {
		completed = append(completed, string(step))
	}
	return r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, saveQuery,
			tenantID, string(rec.CurrentStep), completed, rec.IsFreePlan, rec.LastUpdated)
		return err
	})
}

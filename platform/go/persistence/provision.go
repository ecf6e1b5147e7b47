package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	sqlassets "github.com/quillbooks/quillbooks-core/database"
)

// SeedFunc inserts a tenant's minimal default rows. Implementations must be
// idempotent (ON CONFLICT DO NOTHING) since provisioning may run more than
// once for the same tenant.
type SeedFunc func(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error

// Provisioner lazily creates the tenant tables, indexes and row-level-security
// policies. Every statement is idempotent; the DROP POLICY / CREATE POLICY
// pair can still lose a race between two concurrent first accesses, which
// surfaces as a benign ProvisioningError and is retried by TenantDB.
type Provisioner struct {
	statements []string
	seed       SeedFunc
}

// NewProvisioner builds a provisioner over the embedded tenant DDL. seed is
// optional; when non-nil it runs after the DDL inside the same transaction.
func NewProvisioner(seed SeedFunc) *Provisioner {
	var statements []string
	statements = append(statements, splitStatements(sqlassets.OnboardingProgressSQL)...)
	statements = append(statements, splitStatements(sqlassets.BusinessProfilesSQL)...)
	statements = append(statements, splitStatements(sqlassets.SubscriptionsSQL)...)
	return &Provisioner{statements: statements, seed: seed}
}

// EnsureTenantObjects applies the tenant DDL and seeds defaults within the
// caller's transaction. The transaction already carries the tenant's RLS
// context, so seeded rows are automatically scoped.
func (p *Provisioner) EnsureTenantObjects(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	for _, stmt := range p.statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &ProvisioningError{Stage: "apply tenant ddl", Benign: isDuplicateObject(err), cause: err}
		}
	}

	if p.seed != nil {
		if err := p.seed(ctx, tx, tenantID); err != nil {
			return &ProvisioningError{Stage: "seed tenant defaults", Benign: isDuplicateObject(err), cause: err}
		}
	}

	return nil
}

// splitStatements breaks an embedded SQL asset into individual statements.
// pgx executes one statement per Exec; the assets keep statements free of
// embedded semicolons so a plain split is safe.
func splitStatements(sql string) []string {
	raw := strings.Split(sql, ";")
	statements := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}

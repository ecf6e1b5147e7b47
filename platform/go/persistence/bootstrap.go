package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/quillbooks/quillbooks-core/database"
)

// Bootstrap applies the tenant DDL (tables, indexes, row-level-security
// policies) in a single transaction. TenantDB provisions the same objects
// lazily; this helper exists for the CLI and tests, where having the schema in
// place up front is convenient. SQL is embedded at build time so binaries stay
// self-contained, and every statement is idempotent.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.OnboardingProgressSQL)...)
	statements = append(statements, splitStatements(sqlassets.BusinessProfilesSQL)...)
	statements = append(statements, splitStatements(sqlassets.SubscriptionsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	onboardingrepo "github.com/quillbooks/quillbooks-core/domains/onboarding/be/repo"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
)

// Command groups bootstrap helpers (database DDL, tenant provisioning).
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap database objects and tenant rows",
		Long:  "Apply the embedded DDL (tables, indexes, row-level-security policies) and provision tenants up front instead of lazily on first access.",
	}

	cmd.AddCommand(dbCommand())
	cmd.AddCommand(tenantCommand())
	return cmd
}

func dbCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "db",
		Short: "Apply the embedded schema DDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.Bootstrap(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap database: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Database bootstrap complete.")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}

func tenantCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
	)

	c := &cobra.Command{
		Use:   "tenant",
		Short: "Provision a tenant's objects and seed rows",
		Long:  "Runs the same provisioning the API performs lazily on a tenant's first request, so the first real request pays no setup cost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant-id: %w", err)
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
				Pool:        pool,
				Provisioner: persistence.NewProvisioner(onboardingrepo.SeedDefaults),
			})

			// Any tenant-scoped transaction triggers provisioning; read back the
			// seeded progress row to confirm the tenant is serviceable.
			var currentStep string
			err = tenantDB.WithTenant(ctx, id, func(tx pgx.Tx) error {
				return tx.QueryRow(ctx,
					`SELECT current_step FROM onboarding_progress WHERE tenant_id = $1`, id,
				).Scan(&currentStep)
			})
			if err != nil {
				return fmt.Errorf("provision tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s provisioned. Onboarding step: %s\n", id, currentStep)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "tenant UUID to provision")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txBeginner exposes the minimal pgx pool behaviour needed by TenantDB.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TenantDB executes work inside a transaction scoped to exactly one tenant.
// The per-transaction session variable app.tenant_id drives every
// row-level-security policy, so statements issued through the transaction are
// automatically tenant-scoped; application code must never rely on manual
// WHERE tenant_id filtering as the sole isolation mechanism.
type TenantDB struct {
	pool        txBeginner
	provisioner *Provisioner

	// provisioned remembers tenants whose objects and seed rows are known to
	// exist, so the lazy provisioning step runs once per tenant per process.
	provisioned sync.Map
}

type TenantDBConfig struct {
	Pool *pgxpool.Pool
	// Provisioner is optional; without it WithTenant assumes objects exist.
	Provisioner *Provisioner
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	return &TenantDB{pool: cfg.Pool, provisioner: cfg.Provisioner}
}

// WithTenant runs fn inside a transaction whose RLS context is set to
// tenantID, lazily provisioning the tenant's schema objects on first access.
// Commit on success; rollback and a typed error on any failure. A benign
// provisioning race (two first accesses creating the same object) is retried
// once and never leaks to the caller.
func (db *TenantDB) WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(tx pgx.Tx) error) error {
	if tenantID == uuid.Nil {
		return ErrTenantNotFound
	}

	err := db.withTenantOnce(ctx, tenantID, fn)
	if provErr, ok := provisioningError(err); ok && provErr.Benign {
		err = db.withTenantOnce(ctx, tenantID, fn)
	}
	return err
}

func (db *TenantDB) withTenantOnce(ctx context.Context, tenantID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TranslateError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// set_config with is_local=true dies with the transaction, so a pooled
	// connection can never carry one tenant's RLS context into the next
	// request.
	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID.String()); err != nil {
		return TranslateError(fmt.Errorf("set tenant context: %w", err))
	}

	if db.provisioner != nil {
		if _, done := db.provisioned.Load(tenantID); !done {
			if err := db.provisioner.EnsureTenantObjects(ctx, tx, tenantID); err != nil {
				return err
			}
		}
	}

	if err := fn(tx); err != nil {
		return TranslateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TranslateError(fmt.Errorf("commit tx: %w", err))
	}

	// Only a committed transaction proves the objects exist.
	db.provisioned.Store(tenantID, struct{}{})
	return nil
}

func provisioningError(err error) (*ProvisioningError, bool) {
	var provErr *ProvisioningError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}

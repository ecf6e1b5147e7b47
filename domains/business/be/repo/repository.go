package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks-core/domains/business/be/service"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
)

var profileColumns = []string{
	"legal_name", "trade_name", "industry", "tax_id",
	"contact_email", "contact_phone", "address", "updated_at",
}

var subscriptionColumns = []string{"plan_code", "is_free", "status", "updated_at"}

var profileUpsert = persistence.UpsertSpec{
	Table:      "business_profiles",
	KeyColumn:  "tenant_id",
	InsertOnly: []string{"profile_id"},
	Columns:    profileColumns,
	Returning: []string{
		"profile_id", "tenant_id", "legal_name", "trade_name", "industry",
		"tax_id", "contact_email", "contact_phone", "address", "created_at", "updated_at",
	},
}.SQL()

var subscriptionUpsert = persistence.UpsertSpec{
	Table:      "subscriptions",
	KeyColumn:  "tenant_id",
	InsertOnly: []string{"subscription_id"},
	Columns:    subscriptionColumns,
	Defaults:   map[string]string{"is_free": "false", "status": "'active'"},
	Returning: []string{
		"subscription_id", "tenant_id", "plan_code", "is_free", "status",
		"started_at", "updated_at",
	},
}.SQL()

const profileQuery = `
SELECT profile_id, tenant_id, legal_name, trade_name, industry, tax_id,
       contact_email, contact_phone, address, created_at, updated_at
FROM business_profiles
WHERE tenant_id = $1`

const subscriptionQuery = `
SELECT subscription_id, tenant_id, plan_code, is_free, status, started_at, updated_at
FROM subscriptions
WHERE tenant_id = $1`

// Repository stores business records in the tenant-scoped tables.
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

func (r *Repository) GetProfile(ctx context.Context, tenantID uuid.UUID) (service.Profile, error) {
	var profile service.Profile
	err := r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		err := scanProfile(tx.QueryRow(ctx, profileQuery, tenantID), &profile)
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrProfileNotFound
		}
		return err
	})
	if err != nil {
		return service.Profile{}, err
	}
	return profile, nil
}

func (r *Repository) UpsertProfile(ctx context.Context, tenantID uuid.UUID, input service.ProfileInput) (service.Profile, error) {
	var profile service.Profile
	err := r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, profileUpsert,
			tenantID, uuid.New(),
			input.LegalName, input.TradeName, input.Industry, input.TaxID,
			input.ContactEmail, input.ContactPhone, input.Address,
			time.Now().UTC())
		return scanProfile(row, &profile)
	})
	if err != nil {
		return service.Profile{}, err
	}
	return profile, nil
}

func (r *Repository) GetSubscription(ctx context.Context, tenantID uuid.UUID) (service.Subscription, error) {
	var sub service.Subscription
	err := r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		err := scanSubscription(tx.QueryRow(ctx, subscriptionQuery, tenantID), &sub)
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrSubscriptionNotFound
		}
		return err
	})
	if err != nil {
		return service.Subscription{}, err
	}
	return sub, nil
}

func (r *Repository) UpsertSubscription(ctx context.Context, tenantID uuid.UUID, input service.SubscriptionInput) (service.Subscription, error) {
	var sub service.Subscription
	err := r.db.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, subscriptionUpsert,
			tenantID, uuid.New(),
			input.PlanCode, input.IsFree, input.Status,
			time.Now().UTC())
		return scanSubscription(row, &sub)
	})
	if err != nil {
		return service.Subscription{}, err
	}
	return sub, nil
}

func scanProfile(row pgx.Row, p *service.Profile) error {
	return row.Scan(
		&p.ProfileID, &p.TenantID, &p.LegalName, &p.TradeName, &p.Industry,
		&p.TaxID, &p.ContactEmail, &p.ContactPhone, &p.Address,
		&p.CreatedAt, &p.UpdatedAt)
}

func scanSubscription(row pgx.Row, s *service.Subscription) error {
	return row.Scan(
		&s.SubscriptionID, &s.TenantID, &s.PlanCode, &s.IsFree, &s.Status,
		&s.StartedAt, &s.UpdatedAt)
}

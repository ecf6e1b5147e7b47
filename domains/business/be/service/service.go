package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrProfileNotFound      = errors.New("business profile not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrLegalNameRequired    = errors.New("legal name must not be empty")
	ErrPlanCodeRequired     = errors.New("plan code must not be empty")
)

// Profile is a tenant's business profile row.
type Profile struct {
	ProfileID    uuid.UUID
	TenantID     uuid.UUID
	LegalName    string
	TradeName    *string
	Industry     *string
	TaxID        *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileInput carries the mutable profile fields. A nil field is a no-op:
// the stored value is kept as-is.
type ProfileInput struct {
	LegalName    *string
	TradeName    *string
	Industry     *string
	TaxID        *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
}

// Subscription is a tenant's plan selection row.
type Subscription struct {
	SubscriptionID uuid.UUID
	TenantID       uuid.UUID
	PlanCode       string
	IsFree         bool
	Status         string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionInput carries the mutable subscription fields with the same
// nil-means-keep semantics as ProfileInput.
type SubscriptionInput struct {
	PlanCode *string
	IsFree   *bool
	Status   *string
}

// Repository abstracts tenant-scoped persistence for business records.
type Repository interface {
	GetProfile(ctx context.Context, tenantID uuid.UUID) (Profile, error)
	UpsertProfile(ctx context.Context, tenantID uuid.UUID, input ProfileInput) (Profile, error)
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (Subscription, error)
	UpsertSubscription(ctx context.Context, tenantID uuid.UUID, input SubscriptionInput) (Subscription, error)
}

// Service provides business record operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("business repo is required")
	}
	return &Service{repo: repo}
}

// GetProfile returns the tenant's business profile.
func (s *Service) GetProfile(ctx context.Context, tenantID uuid.UUID) (Profile, error) {
	return s.repo.GetProfile(ctx, tenantID)
}

// UpsertProfile applies the supplied fields to the tenant's profile, creating
// the row when absent. Supplied-but-empty legal names are rejected; nil
// fields keep their stored values.
func (s *Service) UpsertProfile(ctx context.Context, tenantID uuid.UUID, input ProfileInput) (Profile, error) {
	if input.LegalName != nil && strings.TrimSpace(*input.LegalName) == "" {
		return Profile{}, ErrLegalNameRequired
	}
	return s.repo.UpsertProfile(ctx, tenantID, input)
}

// GetSubscription returns the tenant's subscription.
func (s *Service) GetSubscription(ctx context.Context, tenantID uuid.UUID) (Subscription, error) {
	return s.repo.GetSubscription(ctx, tenantID)
}

// UpsertSubscription applies the supplied fields to the tenant's
// subscription, creating the row when absent.
func (s *Service) UpsertSubscription(ctx context.Context, tenantID uuid.UUID, input SubscriptionInput) (Subscription, error) {
	if input.PlanCode != nil && strings.TrimSpace(*input.PlanCode) == "" {
		return Subscription{}, ErrPlanCodeRequired
	}
	return s.repo.UpsertSubscription(ctx, tenantID, input)
}

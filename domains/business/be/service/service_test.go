package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureRepo struct {
	profileInput      ProfileInput
	subscriptionInput SubscriptionInput
	calls             int
}

func (r *captureRepo) GetProfile(ctx context.Context, tenantID uuid.UUID) (Profile, error) {
	return Profile{}, ErrProfileNotFound
}

func (r *captureRepo) UpsertProfile(ctx context.Context, tenantID uuid.UUID, input ProfileInput) (Profile, error) {
	r.profileInput = input
	r.calls++
	return Profile{TenantID: tenantID}, nil
}

func (r *captureRepo) GetSubscription(ctx context.Context, tenantID uuid.UUID) (Subscription, error) {
	return Subscription{}, ErrSubscriptionNotFound
}

func (r *captureRepo) UpsertSubscription(ctx context.Context, tenantID uuid.UUID, input SubscriptionInput) (Subscription, error) {
	r.subscriptionInput = input
	r.calls++
	return Subscription{TenantID: tenantID}, nil
}

func strPtr(s string) *string { return &s }

func TestUpsertProfileRejectsBlankLegalName(t *testing.T) {
	repo := &captureRepo{}
	svc := New(repo)

	_, err := svc.UpsertProfile(context.Background(), uuid.New(), ProfileInput{LegalName: strPtr("   ")})
	require.ErrorIs(t, err, ErrLegalNameRequired)
	require.Zero(t, repo.calls)
}

func TestUpsertProfileAllowsAbsentLegalName(t *testing.T) {
	repo := &captureRepo{}
	svc := New(repo)

	_, err := svc.UpsertProfile(context.Background(), uuid.New(), ProfileInput{TradeName: strPtr("Quill")})
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)
	require.Nil(t, repo.profileInput.LegalName, "absent fields stay nil so storage keeps prior values")
	require.Equal(t, "Quill", *repo.profileInput.TradeName)
}

func TestUpsertSubscriptionRejectsBlankPlanCode(t *testing.T) {
	repo := &captureRepo{}
	svc := New(repo)

	_, err := svc.UpsertSubscription(context.Background(), uuid.New(), SubscriptionInput{PlanCode: strPtr("")})
	require.ErrorIs(t, err, ErrPlanCodeRequired)
	require.Zero(t, repo.calls)
}

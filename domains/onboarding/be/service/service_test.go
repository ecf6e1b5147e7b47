package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillbooks/quillbooks-core/platform/go/kvcache"
)

type fakeRepo struct {
	rec     Record
	getErr  error
	saveErr error
	saves   int
}

func (f *fakeRepo) Get(ctx context.Context, tenantID uuid.UUID) (Record, error) {
	return f.rec, f.getErr
}

func (f *fakeRepo) Save(ctx context.Context, tenantID uuid.UUID, rec Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	// A record already complete never regresses, matching the database guard.
	if f.rec.Exists && f.rec.CurrentStep == StepComplete && rec.CurrentStep != StepComplete {
		return nil
	}
	f.rec = rec
	f.saves++
	return nil
}

type fakeAttrs struct {
	attrs  map[string]string
	getErr error
	setErr error
	sets   int
}

func (f *fakeAttrs) Attributes(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	return f.attrs, f.getErr
}

func (f *fakeAttrs) SetAttributes(ctx context.Context, tenantID uuid.UUID, attrs map[string]string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.attrs = attrs
	f.sets++
	return nil
}

type fakeBusiness struct {
	profiles      []BusinessInfo
	subscriptions []string
	err           error
}

func (f *fakeBusiness) SaveProfile(ctx context.Context, tenantID uuid.UUID, info BusinessInfo) error {
	if f.err != nil {
		return f.err
	}
	f.profiles = append(f.profiles, info)
	return nil
}

func (f *fakeBusiness) SaveSubscription(ctx context.Context, tenantID uuid.UUID, planCode string, isFree bool) error {
	if f.err != nil {
		return f.err
	}
	f.subscriptions = append(f.subscriptions, planCode)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	attrs    *fakeAttrs
	cache    *kvcache.Memory
	business *fakeBusiness
	tenantID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &fakeRepo{}
	attrs := &fakeAttrs{}
	cache := kvcache.NewMemory()
	business := &fakeBusiness{}
	return &fixture{
		svc:      New(repo, attrs, cache, business, zap.NewNop()),
		repo:     repo,
		attrs:    attrs,
		cache:    cache,
		business: business,
		tenantID: uuid.New(),
	}
}

func (f *fixture) cacheGet(t *testing.T, key string) string {
	t.Helper()
	v, _, err := f.cache.Get(context.Background(), "tenant."+f.tenantID.String()+"."+key)
	require.NoError(t, err)
	return v
}

func TestReconcileFreePlanSkipsPayment(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{
		Exists:         true,
		CurrentStep:    StepPayment,
		CompletedSteps: []Step{StepBusinessInfo, StepSubscription},
		IsFreePlan:     true,
	}

	state, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, state.Status)
	require.Equal(t, StepSetup, state.CurrentStep, "free plan must skip the payment step")
}

func TestReconcileBackfillsLaggingSourcesWhenServerComplete(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{
		Exists:         true,
		CurrentStep:    StepComplete,
		CompletedSteps: []Step{StepBusinessInfo, StepSubscription, StepSetup, StepComplete},
	}

	state, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.True(t, state.Complete())

	require.Equal(t, 1, f.attrs.sets, "provider attributes back-filled")
	require.Equal(t, "complete", f.attrs.attrs["onboardingStatus"])
	require.Equal(t, "complete", f.cacheGet(t, "onboarding.currentStep"))
	require.Zero(t, f.repo.saves, "server already agrees; no write")
}

func TestReconcileSecondCallWithAgreeingSourcesWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{
		Exists:         true,
		CurrentStep:    StepComplete,
		CompletedSteps: []Step{StepBusinessInfo, StepSubscription, StepSetup, StepComplete},
	}

	_, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	setsAfterFirst := f.attrs.sets

	_, err = f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.Equal(t, setsAfterFirst, f.attrs.sets, "agreeing sources mean zero writes")
	require.Zero(t, f.repo.saves)
}

func TestReconcileNeverRegressesCompletedTenant(t *testing.T) {
	f := newFixture(t)
	f.attrs.attrs = map[string]string{"onboardingStatus": "complete"}
	f.repo.rec = Record{Exists: true, CurrentStep: StepBusinessInfo}

	state, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.True(t, state.Complete(), "any source asserting completion wins")

	require.Equal(t, 1, f.repo.saves, "lagging server record back-filled")
	require.Equal(t, StepComplete, f.repo.rec.CurrentStep)
}

func TestReconcileConflictResolvesToEarliestIncompleteStep(t *testing.T) {
	f := newFixture(t)
	f.attrs.attrs = map[string]string{"onboardingStatus": "payment"}
	f.repo.rec = Record{Exists: true, CurrentStep: StepSubscription}

	state, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, state.Status)
	require.Equal(t, StepBusinessInfo, state.CurrentStep,
		"disagreeing claims resolve to the earliest incomplete step")
}

func TestReconcileToleratesProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.attrs.getErr = errors.New("provider unavailable")
	f.repo.rec = Record{Exists: true, CurrentStep: StepSubscription, CompletedSteps: []Step{StepBusinessInfo}}

	state, err := f.svc.Reconcile(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.Equal(t, StepSubscription, state.CurrentStep)
}

func TestCompleteBusinessInfoRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CompleteBusinessInfo(context.Background(), f.tenantID, json.RawMessage(`{"tradeName":"Quill"}`))
	require.ErrorIs(t, err, ErrInvalidPayload)
	require.Empty(t, f.business.profiles)
	require.Zero(t, f.repo.saves)
}

func TestCompleteBusinessInfoStoresProfileAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{Exists: true, CurrentStep: StepBusinessInfo}

	state, err := f.svc.CompleteBusinessInfo(context.Background(), f.tenantID,
		json.RawMessage(`{"legalName":"Quill Books Ltd","industry":"accounting"}`))
	require.NoError(t, err)
	require.Equal(t, StepSubscription, state.CurrentStep)

	require.Len(t, f.business.profiles, 1)
	require.Equal(t, "Quill Books Ltd", f.business.profiles[0].LegalName)
	require.Equal(t, StepSubscription, f.repo.rec.CurrentStep)
	require.Equal(t, "subscription", f.cacheGet(t, "onboarding.currentStep"))
}

func TestSelectSubscriptionRequiresPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SelectSubscription(context.Background(), f.tenantID, "  ", true)
	require.ErrorIs(t, err, ErrPlanRequired)
}

func TestSelectSubscriptionFreePlanAdvancesToSetup(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{Exists: true, CurrentStep: StepSubscription, CompletedSteps: []Step{StepBusinessInfo}}

	state, err := f.svc.SelectSubscription(context.Background(), f.tenantID, "starter-free", true)
	require.NoError(t, err)
	require.Equal(t, StepSetup, state.CurrentStep)
	require.True(t, state.IsFreePlan)
	require.Equal(t, []string{"starter-free"}, f.business.subscriptions)
}

func TestSelectSubscriptionPaidPlanRequiresPayment(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{Exists: true, CurrentStep: StepSubscription, CompletedSteps: []Step{StepBusinessInfo}}

	state, err := f.svc.SelectSubscription(context.Background(), f.tenantID, "pro", false)
	require.NoError(t, err)
	require.Equal(t, StepPayment, state.CurrentStep)
}

func TestCompleteSetupCompletesTenant(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{
		Exists:         true,
		CurrentStep:    StepSetup,
		CompletedSteps: []Step{StepBusinessInfo, StepSubscription},
		IsFreePlan:     true,
	}

	state, err := f.svc.CompleteSetup(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.True(t, state.Complete())

	require.Equal(t, StepComplete, f.repo.rec.CurrentStep)
	require.Equal(t, "true", f.attrs.attrs["onboardingSetupDone"])
	require.Equal(t, "complete", f.cacheGet(t, "onboarding.currentStep"))
}

func TestStepCompletionIsNoOpOnceComplete(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{
		Exists:         true,
		CurrentStep:    StepComplete,
		CompletedSteps: []Step{StepBusinessInfo, StepSubscription, StepSetup, StepComplete},
	}

	state, err := f.svc.CompletePayment(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.True(t, state.Complete())
	require.Zero(t, f.repo.saves, "completed tenants are never rewritten")
}

func TestCompleteBusinessInfoIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.repo.rec = Record{Exists: true, CurrentStep: StepBusinessInfo}
	payload := json.RawMessage(`{"legalName":"Quill Books Ltd"}`)

	_, err := f.svc.CompleteBusinessInfo(context.Background(), f.tenantID, payload)
	require.NoError(t, err)
	state, err := f.svc.CompleteBusinessInfo(context.Background(), f.tenantID, payload)
	require.NoError(t, err)

	require.Equal(t, StepSubscription, state.CurrentStep)
	require.Equal(t, []Step{StepBusinessInfo}, f.repo.rec.CompletedSteps)
}

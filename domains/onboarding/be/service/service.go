package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/quillbooks/quillbooks-core/platform/go/kvcache"
)

// Errors returned by the service layer.
var (
	ErrInvalidPayload = errors.New("invalid business info payload")
	ErrPlanRequired   = errors.New("plan code is required")
)

// Provider attribute keys mirrored onto the identity provider.
const (
	attrStatus    = "onboardingStatus"
	attrSetupDone = "onboardingSetupDone"
	attrFreePlan  = "onboardingFreePlan"
)

// Client cache keys, namespaced per tenant under "onboarding.".
const (
	cacheKeyCurrentStep    = "onboarding.currentStep"
	cacheKeyCompletedSteps = "onboarding.completedSteps"
	cacheKeySetupDone      = "onboarding.setupDone"
	cacheKeyFreePlan       = "onboarding.isFreePlan"
)

//go:embed business_info.schema.json
var businessInfoSchemaJSON []byte

var businessInfoSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("business_info.schema.json", bytes.NewReader(businessInfoSchemaJSON)); err != nil {
		panic(fmt.Sprintf("register business info schema: %v", err))
	}
	return compiler.MustCompile("business_info.schema.json")
}

// Record is the server-side progress row, the durable source of truth.
type Record struct {
	Exists         bool
	CurrentStep    Step
	CompletedSteps []Step
	IsFreePlan     bool
	LastUpdated    time.Time
}

// BusinessInfo is the validated business-info step payload.
type BusinessInfo struct {
	LegalName    string  `json:"legalName"`
	TradeName    *string `json:"tradeName,omitempty"`
	Industry     *string `json:"industry,omitempty"`
	TaxID        *string `json:"taxId,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
	Address      *string `json:"address,omitempty"`
}

// Repository persists the server progress record. Save must never regress a
// record whose current step is already complete.
type Repository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (Record, error)
	Save(ctx context.Context, tenantID uuid.UUID, rec Record) error
}

// AttributeStore reads and writes the identity provider's custom attributes
// for the tenant's owning user. Implementations may fail arbitrarily; the
// service treats every call as best-effort.
type AttributeStore interface {
	Attributes(ctx context.Context, tenantID uuid.UUID) (map[string]string, error)
	SetAttributes(ctx context.Context, tenantID uuid.UUID, attrs map[string]string) error
}

// BusinessWriter stores the business records produced by onboarding steps.
type BusinessWriter interface {
	SaveProfile(ctx context.Context, tenantID uuid.UUID, info BusinessInfo) error
	SaveSubscription(ctx context.Context, tenantID uuid.UUID, planCode string, isFree bool) error
}

// Service drives the onboarding state machine across the three sources of
// truth: provider attributes, the server record, and the client cache.
type Service struct {
	repo     Repository
	attrs    AttributeStore
	cache    kvcache.Store
	business BusinessWriter
	logger   *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, attrs AttributeStore, cache kvcache.Store, business BusinessWriter, logger *zap.Logger) *Service {
	if repo == nil {
		panic("onboarding repo is required")
	}
	if attrs == nil {
		panic("attribute store is required")
	}
	if cache == nil {
		panic("cache store is required")
	}
	if business == nil {
		panic("business writer is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, attrs: attrs, cache: cache, business: business, logger: logger}
}

// Status returns the reconciled onboarding state for the tenant.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID) (EffectiveState, error) {
	return s.Reconcile(ctx, tenantID)
}

// Reconcile reads all three sources, merges them, and when the merge says the
// tenant finished onboarding writes that conclusion back to every lagging
// source. Back-fill is best-effort: a source that cannot be updated is logged
// and retried on the next reconcile, never failed to the caller. A second
// call with agreeing sources performs zero writes.
func (s *Service) Reconcile(ctx context.Context, tenantID uuid.UUID) (EffectiveState, error) {
	rec, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return EffectiveState{}, fmt.Errorf("read progress record: %w", err)
	}

	server := recordState(rec)
	provider := s.readProvider(ctx, tenantID)
	client := s.readCache(ctx, tenantID)

	merged, conflict := Merge(provider, server, client)
	if conflict {
		s.logger.Warn("ONBOARDING_CONFLICT: sources disagree on current step",
			zap.String("tenant_id", tenantID.String()),
			zap.String("provider_step", string(provider.CurrentStep)),
			zap.String("server_step", string(server.CurrentStep)),
			zap.String("client_step", string(client.CurrentStep)),
			zap.String("resolved_step", string(merged.CurrentStep)))
	}

	if merged.Complete() {
		s.backfill(ctx, tenantID, merged, provider, server, client)
	}

	return merged, nil
}

// CompleteBusinessInfo validates the payload, stores the business profile,
// and durably advances the progress record.
func (s *Service) CompleteBusinessInfo(ctx context.Context, tenantID uuid.UUID, payload json.RawMessage) (EffectiveState, error) {
	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return EffectiveState{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := businessInfoSchema.Validate(document); err != nil {
		return EffectiveState{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var info BusinessInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return EffectiveState{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := s.business.SaveProfile(ctx, tenantID, info); err != nil {
		return EffectiveState{}, fmt.Errorf("save business profile: %w", err)
	}

	return s.advance(ctx, tenantID, StepBusinessInfo, nil)
}

// SelectSubscription records the chosen plan and advances the flow. A free
// plan makes the payment step skippable.
func (s *Service) SelectSubscription(ctx context.Context, tenantID uuid.UUID, planCode string, isFree bool) (EffectiveState, error) {
	if strings.TrimSpace(planCode) == "" {
		return EffectiveState{}, ErrPlanRequired
	}

	if err := s.business.SaveSubscription(ctx, tenantID, planCode, isFree); err != nil {
		return EffectiveState{}, fmt.Errorf("save subscription: %w", err)
	}

	return s.advance(ctx, tenantID, StepSubscription, func(rec *Record) {
		rec.IsFreePlan = isFree
	})
}

// CompletePayment marks the payment step done.
func (s *Service) CompletePayment(ctx context.Context, tenantID uuid.UUID) (EffectiveState, error) {
	return s.advance(ctx, tenantID, StepPayment, nil)
}

// CompleteSetup marks the final setup step done, which makes the merged state
// complete.
func (s *Service) CompleteSetup(ctx context.Context, tenantID uuid.UUID) (EffectiveState, error) {
	return s.advance(ctx, tenantID, StepSetup, nil)
}

// advance adds completedStep to the server record, recomputes the current
// step, persists, and mirrors the result to the provider and client cache. A
// tenant already at complete is never modified.
func (s *Service) advance(ctx context.Context, tenantID uuid.UUID, completedStep Step, mutate func(*Record)) (EffectiveState, error) {
	rec, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return EffectiveState{}, fmt.Errorf("read progress record: %w", err)
	}

	if rec.CurrentStep == StepComplete {
		merged, _ := Merge(SourceState{}, recordState(rec), SourceState{})
		return merged, nil
	}

	rec.Exists = true
	if !stepsContain(rec.CompletedSteps, completedStep) {
		rec.CompletedSteps = mergeSteps(rec.CompletedSteps, []Step{completedStep})
	}
	if mutate != nil {
		mutate(&rec)
	}

	merged, _ := Merge(SourceState{}, recordState(rec), SourceState{})
	rec.CurrentStep = merged.CurrentStep
	rec.CompletedSteps = merged.CompletedSteps
	rec.IsFreePlan = merged.IsFreePlan
	rec.LastUpdated = time.Now().UTC()

	if err := s.repo.Save(ctx, tenantID, rec); err != nil {
		return EffectiveState{}, fmt.Errorf("save progress record: %w", err)
	}

	s.mirror(ctx, tenantID, merged)
	return merged, nil
}

// backfill pushes a completed effective state to every source that lags it.
func (s *Service) backfill(ctx context.Context, tenantID uuid.UUID, merged EffectiveState, provider, server, client SourceState) {
	if server.CurrentStep != StepComplete {
		rec := Record{
			Exists:         true,
			CurrentStep:    StepComplete,
			CompletedSteps: merged.CompletedSteps,
			IsFreePlan:     merged.IsFreePlan,
			LastUpdated:    time.Now().UTC(),
		}
		if err := s.repo.Save(ctx, tenantID, rec); err != nil {
			s.logger.Warn("onboarding back-fill: server record not updated",
				zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}

	if !provider.Known || provider.CurrentStep != StepComplete {
		s.writeProvider(ctx, tenantID, merged)
	}

	if !client.Known || client.CurrentStep != StepComplete {
		s.writeCache(ctx, tenantID, merged)
	}
}

// mirror propagates a freshly advanced state to the provider and cache.
func (s *Service) mirror(ctx context.Context, tenantID uuid.UUID, merged EffectiveState) {
	s.writeProvider(ctx, tenantID, merged)
	s.writeCache(ctx, tenantID, merged)
}

func (s *Service) readProvider(ctx context.Context, tenantID uuid.UUID) SourceState {
	attrs, err := s.attrs.Attributes(ctx, tenantID)
	if err != nil {
		s.logger.Warn("onboarding: provider attributes unreadable",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return SourceState{}
	}
	status, ok := attrs[attrStatus]
	if !ok {
		return SourceState{}
	}
	return SourceState{
		Known:       true,
		CurrentStep: StepFromString(status),
		IsFreePlan:  attrs[attrFreePlan] == "true",
		SetupDone:   attrs[attrSetupDone] == "true",
	}
}

func (s *Service) writeProvider(ctx context.Context, tenantID uuid.UUID, merged EffectiveState) {
	attrs := map[string]string{
		attrStatus:   string(merged.CurrentStep),
		attrFreePlan: fmt.Sprintf("%t", merged.IsFreePlan),
		attrSetupDone: fmt.Sprintf("%t",
			merged.Complete() || stepsContain(merged.CompletedSteps, StepSetup)),
	}
	if err := s.attrs.SetAttributes(ctx, tenantID, attrs); err != nil {
		s.logger.Warn("onboarding: provider attributes not updated",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

func (s *Service) readCache(ctx context.Context, tenantID uuid.UUID) SourceState {
	cache := s.tenantCache(tenantID)

	step, ok, err := cache.Get(ctx, cacheKeyCurrentStep)
	if err != nil {
		s.logger.Warn("onboarding: client cache unreadable",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return SourceState{}
	}
	if !ok {
		return SourceState{}
	}

	state := SourceState{Known: true, CurrentStep: StepFromString(step)}
	if raw, ok, _ := cache.Get(ctx, cacheKeyCompletedSteps); ok && raw != "" {
		for _, part := range strings.Split(raw, ",") {
			state.CompletedSteps = append(state.CompletedSteps, StepFromString(part))
		}
	}
	if v, ok, _ := cache.Get(ctx, cacheKeySetupDone); ok {
		state.SetupDone = v == "true"
	}
	if v, ok, _ := cache.Get(ctx, cacheKeyFreePlan); ok {
		state.IsFreePlan = v == "true"
	}
	return state
}

func (s *Service) writeCache(ctx context.Context, tenantID uuid.UUID, merged EffectiveState) {
	cache := s.tenantCache(tenantID)

	steps := make([]string, 0, len(merged.CompletedSteps))
	for _, step := range merged.CompletedSteps {
		steps = append(steps, string(step))
	}

	entries := map[string]string{
		cacheKeyCurrentStep:    string(merged.CurrentStep),
		cacheKeyCompletedSteps: strings.Join(steps, ","),
		cacheKeySetupDone: fmt.Sprintf("%t",
			merged.Complete() || stepsContain(merged.CompletedSteps, StepSetup)),
		cacheKeyFreePlan: fmt.Sprintf("%t", merged.IsFreePlan),
	}
	for key, value := range entries {
		if err := cache.Set(ctx, key, value); err != nil {
			s.logger.Warn("onboarding: client cache not updated",
				zap.String("tenant_id", tenantID.String()),
				zap.String("key", key), zap.Error(err))
			return
		}
	}
}

func (s *Service) tenantCache(tenantID uuid.UUID) kvcache.Store {
	return kvcache.Namespaced(s.cache, "tenant", tenantID.String())
}

func recordState(rec Record) SourceState {
	if !rec.Exists {
		return SourceState{}
	}
	return SourceState{
		Known:          true,
		CurrentStep:    rec.CurrentStep,
		CompletedSteps: rec.CompletedSteps,
		IsFreePlan:     rec.IsFreePlan,
		SetupDone:      stepsContain(rec.CompletedSteps, StepSetup),
	}
}

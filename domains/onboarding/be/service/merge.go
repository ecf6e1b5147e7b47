package service

// SourceState is one source of truth's view of a tenant's onboarding
// progress. Known is false when the source has no record at all, which is
// different from a record asserting the first step.
type SourceState struct {
	Known          bool
	CurrentStep    Step
	CompletedSteps []Step
	IsFreePlan     bool
	SetupDone      bool
}

// StatusComplete / StatusInProgress are the two effective statuses exposed to
// clients.
const (
	StatusComplete   = "complete"
	StatusInProgress = "in_progress"
)

// EffectiveState is the merged onboarding view served to clients and written
// back to lagging sources.
type EffectiveState struct {
	Status         string
	CurrentStep    Step
	CompletedSteps []Step
	IsFreePlan     bool
}

// Complete reports whether the merged state reached the terminal step.
func (e EffectiveState) Complete() bool {
	return e.Status == StatusComplete
}

// Merge combines the three sources of truth into one effective state. The
// merge is deliberately permissive: any single source asserting completion
// wins, because re-entering the onboarding flow would lock a tenant out of
// functionality they already finished setting up. When no source asserts
// completion the next step follows fixed precedence over the union of
// completed steps.
//
// Merge is pure, commutative across agreeing sources, and idempotent, so
// out-of-order reconciliation from concurrent tabs cannot regress a tenant.
// The conflict flag is raised when two sources disagree on the current step
// without either claiming completion; callers log it and trust the
// precedence result.
func Merge(provider, server, client SourceState) (EffectiveState, bool) {
	sources := []SourceState{provider, server, client}

	completed := mergeSteps(provider.CompletedSteps, server.CompletedSteps, client.CompletedSteps)
	isFree := provider.IsFreePlan || server.IsFreePlan || client.IsFreePlan

	businessDone := stepsContain(completed, StepBusinessInfo)
	subscriptionDone := stepsContain(completed, StepSubscription)
	paymentDone := stepsContain(completed, StepPayment)
	setupDone := provider.SetupDone || server.SetupDone || client.SetupDone ||
		stepsContain(completed, StepSetup)

	// Setup is the final confirmation step, so a raised setup-done flag
	// counts as completion even when earlier steps were never mirrored.
	anyComplete := setupDone
	for _, src := range sources {
		if src.Known && src.CurrentStep == StepComplete {
			anyComplete = true
		}
	}

	if anyComplete {
		return EffectiveState{
			Status:         StatusComplete,
			CurrentStep:    StepComplete,
			CompletedSteps: mergeSteps(completed, []Step{StepBusinessInfo, StepSubscription, StepSetup, StepComplete}),
			IsFreePlan:     isFree,
		}, false
	}

	next := StepSetup
	switch {
	case !businessDone:
		next = StepBusinessInfo
	case !subscriptionDone:
		next = StepSubscription
	case !isFree && !paymentDone:
		next = StepPayment
	}

	// Two sources naming different non-complete steps is the unresolvable
	// disagreement case; precedence above already picked the earliest
	// incomplete step, so the conflict is advisory.
	conflict := false
	for i, a := range sources {
		for _, b := range sources[i+1:] {
			if a.Known && b.Known && a.CurrentStep != b.CurrentStep {
				conflict = true
			}
		}
	}

	return EffectiveState{
		Status:         StatusInProgress,
		CurrentStep:    next,
		CompletedSteps: completed,
		IsFreePlan:     isFree,
	}, conflict
}

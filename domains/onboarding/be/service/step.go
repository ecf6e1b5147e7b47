package service

// Step is one stage of the account-setup flow. Progression is driven by
// explicit completion events, never by time, and a tenant that reaches
// StepComplete never moves backwards.
type Step string

const (
	StepBusinessInfo Step = "business_info"
	StepSubscription Step = "subscription"
	StepPayment      Step = "payment"
	StepSetup        Step = "setup"
	StepComplete     Step = "complete"
)

var stepOrder = map[Step]int{
	StepBusinessInfo: 0,
	StepSubscription: 1,
	StepPayment:      2,
	StepSetup:        3,
	StepComplete:     4,
}

// StepFromString converts a stored value; unknown values map to the first
// step so a corrupted source can only make onboarding more conservative.
func StepFromString(s string) Step {
	step := Step(s)
	if _, ok := stepOrder[step]; !ok {
		return StepBusinessInfo
	}
	return step
}

// Before reports whether s precedes other in the flow.
func (s Step) Before(other Step) bool {
	return stepOrder[s] < stepOrder[other]
}

func stepsContain(steps []Step, step Step) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

// mergeSteps returns the union of completed-step sets in flow order.
func mergeSteps(sets ...[]Step) []Step {
	present := make(map[Step]bool)
	for _, set := range sets {
		for _, s := range set {
			present[s] = true
		}
	}
	ordered := []Step{StepBusinessInfo, StepSubscription, StepPayment, StepSetup, StepComplete}
	merged := make([]Step, 0, len(present))
	for _, s := range ordered {
		if present[s] {
			merged = append(merged, s)
		}
	}
	return merged
}

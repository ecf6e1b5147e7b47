package sqlassets

import _ "embed"

//go:embed schema/tenant/onboarding_progress.sql
var OnboardingProgressSQL string

//go:embed schema/tenant/business_profiles.sql
var BusinessProfilesSQL string

//go:embed schema/tenant/subscriptions.sql
var SubscriptionsSQL string

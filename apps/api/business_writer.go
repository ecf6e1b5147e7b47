package main

import (
	"context"

	"github.com/google/uuid"

	businessservice "github.com/quillbooks/quillbooks-core/domains/business/be/service"
	onboardingservice "github.com/quillbooks/quillbooks-core/domains/onboarding/be/service"
)

// businessWriter adapts the business service to the onboarding step handlers
// so completing a step persists the corresponding business record.
type businessWriter struct {
	svc *businessservice.Service
}

func (w *businessWriter) SaveProfile(ctx context.Context, tenantID uuid.UUID, info onboardingservice.BusinessInfo) error {
	_, err := w.svc.UpsertProfile(ctx, tenantID, businessservice.ProfileInput{
		LegalName:    &info.LegalName,
		TradeName:    info.TradeName,
		Industry:     info.Industry,
		TaxID:        info.TaxID,
		ContactEmail: info.ContactEmail,
		ContactPhone: info.ContactPhone,
		Address:      info.Address,
	})
	return err
}

func (w *businessWriter) SaveSubscription(ctx context.Context, tenantID uuid.UUID, planCode string, isFree bool) error {
	_, err := w.svc.UpsertSubscription(ctx, tenantID, businessservice.SubscriptionInput{
		PlanCode: &planCode,
		IsFree:   &isFree,
	})
	return err
}

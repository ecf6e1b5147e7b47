package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quillbooks/quillbooks-core/domains/business/be/service"
	platformlogging "github.com/quillbooks/quillbooks-core/platform/go/logging"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
	"github.com/quillbooks/quillbooks-core/platform/go/tenant"
)

const (
	codeNoTenant   = "NO_TENANT"
	codeNotFound   = "NOT_FOUND"
	codeValidation = "VALIDATION_ERROR"
	codeConflict   = "CONSTRAINT_VIOLATION"
	codeInternal   = "INTERNAL_ERROR"
)

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type profilePayload struct {
	LegalName    *string `json:"legalName,omitempty"`
	TradeName    *string `json:"tradeName,omitempty"`
	Industry     *string `json:"industry,omitempty"`
	TaxID        *string `json:"taxId,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
	Address      *string `json:"address,omitempty"`
}

type profileResponse struct {
	Success bool        `json:"success"`
	Profile profileBody `json:"profile"`
}

type profileBody struct {
	ProfileID    string  `json:"profileId"`
	LegalName    string  `json:"legalName"`
	TradeName    *string `json:"tradeName,omitempty"`
	Industry     *string `json:"industry,omitempty"`
	TaxID        *string `json:"taxId,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
	Address      *string `json:"address,omitempty"`
	UpdatedAt    string  `json:"updatedAt"`
}

type subscriptionPayload struct {
	PlanCode *string `json:"planCode,omitempty"`
	IsFree   *bool   `json:"isFree,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type subscriptionResponse struct {
	Success      bool             `json:"success"`
	Subscription subscriptionBody `json:"subscription"`
}

type subscriptionBody struct {
	SubscriptionID string `json:"subscriptionId"`
	PlanCode       string `json:"planCode"`
	IsFree         bool   `json:"isFree"`
	Status         string `json:"status"`
	StartedAt      string `json:"startedAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// Handler exposes business records over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("business service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the business sub-router, mounted under /business.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.PutProfile)
	r.Get("/subscription", h.GetSubscription)
	r.Put("/subscription", h.PutSubscription)
	return r
}

// GetProfile implements GET /business/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	profile, err := h.svc.GetProfile(r.Context(), tc.TenantID)
	if err != nil {
		h.failForError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: toProfileBody(profile)})
}

// PutProfile implements PUT /business/profile
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.fail(w, http.StatusBadRequest, codeValidation, "request body is required")
		return
	}

	profile, err := h.svc.UpsertProfile(r.Context(), tc.TenantID, service.ProfileInput{
		LegalName:    payload.LegalName,
		TradeName:    payload.TradeName,
		Industry:     payload.Industry,
		TaxID:        payload.TaxID,
		ContactEmail: payload.ContactEmail,
		ContactPhone: payload.ContactPhone,
		Address:      payload.Address,
	})
	if err != nil {
		h.failForError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: toProfileBody(profile)})
}

// GetSubscription implements GET /business/subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	sub, err := h.svc.GetSubscription(r.Context(), tc.TenantID)
	if err != nil {
		h.failForError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, subscriptionResponse{Success: true, Subscription: toSubscriptionBody(sub)})
}

// PutSubscription implements PUT /business/subscription
func (h *Handler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.fail(w, http.StatusBadRequest, codeValidation, "request body is required")
		return
	}

	sub, err := h.svc.UpsertSubscription(r.Context(), tc.TenantID, service.SubscriptionInput{
		PlanCode: payload.PlanCode,
		IsFree:   payload.IsFree,
		Status:   payload.Status,
	})
	if err != nil {
		h.failForError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, subscriptionResponse{Success: true, Subscription: toSubscriptionBody(sub)})
}

func (h *Handler) failForError(w http.ResponseWriter, r *http.Request, err error) {
	var constraintErr *persistence.ConstraintError
	switch {
	case errors.Is(err, service.ErrProfileNotFound), errors.Is(err, service.ErrSubscriptionNotFound):
		h.fail(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, service.ErrLegalNameRequired), errors.Is(err, service.ErrPlanCodeRequired):
		h.fail(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
	case errors.Is(err, persistence.ErrTenantNotFound):
		h.fail(w, http.StatusBadRequest, codeNoTenant, "tenant not found")
	case errors.As(err, &constraintErr):
		h.fail(w, http.StatusConflict, codeConflict, "the change conflicts with existing data")
	default:
		h.requestLogger(r).Error("business operation failed", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if logger := platformlogging.FromRequest(r, nil); logger != nil {
		return logger
	}
	return h.logger
}

func (h *Handler) fail(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, envelope{Success: false, Error: code, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toProfileBody(p service.Profile) profileBody {
	return profileBody{
		ProfileID:    p.ProfileID.String(),
		LegalName:    p.LegalName,
		TradeName:    p.TradeName,
		Industry:     p.Industry,
		TaxID:        p.TaxID,
		ContactEmail: p.ContactEmail,
		ContactPhone: p.ContactPhone,
		Address:      p.Address,
		UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toSubscriptionBody(s service.Subscription) subscriptionBody {
	return subscriptionBody{
		SubscriptionID: s.SubscriptionID.String(),
		PlanCode:       s.PlanCode,
		IsFree:         s.IsFree,
		Status:         s.Status,
		StartedAt:      s.StartedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

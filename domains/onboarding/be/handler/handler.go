package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillbooks/quillbooks-core/domains/onboarding/be/service"
	platformlogging "github.com/quillbooks/quillbooks-core/platform/go/logging"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
	"github.com/quillbooks/quillbooks-core/platform/go/tenant"
)

// Error codes surfaced in the response envelope.
const (
	codeNoTenant   = "NO_TENANT"
	codeValidation = "VALIDATION_ERROR"
	codeConflict   = "CONSTRAINT_VIOLATION"
	codeInternal   = "INTERNAL_ERROR"
)

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	Status         string   `json:"status"`
	CurrentStep    string   `json:"currentStep"`
	CompletedSteps []string `json:"completedSteps"`
}

type subscriptionRequest struct {
	PlanCode string `json:"planCode"`
	IsFree   bool   `json:"isFree"`
}

// Handler exposes the onboarding flow over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("onboarding service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the onboarding sub-router, mounted under /onboarding.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/business-info", h.CompleteBusinessInfo)
	r.Post("/subscription", h.SelectSubscription)
	r.Post("/payment", h.CompletePayment)
	r.Post("/setup", h.CompleteSetup)
	return r
}

// Status implements GET /onboarding/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	state, err := h.svc.Status(r.Context(), tc.TenantID)
	if err != nil {
		h.failForError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toStatusResponse(state))
}

// CompleteBusinessInfo implements POST /onboarding/business-info
func (h *Handler) CompleteBusinessInfo(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(payload) == 0 {
		h.fail(w, http.StatusBadRequest, codeValidation, "request body is required")
		return
	}

	if _, err := h.svc.CompleteBusinessInfo(r.Context(), tc.TenantID, payload); err != nil {
		h.failForError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "business info saved"})
}

// SelectSubscription implements POST /onboarding/subscription
func (h *Handler) SelectSubscription(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, codeValidation, "request body is required")
		return
	}

	if _, err := h.svc.SelectSubscription(r.Context(), tc.TenantID, req.PlanCode, req.IsFree); err != nil {
		h.failForError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "subscription selected"})
}

// CompletePayment implements POST /onboarding/payment
func (h *Handler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	h.completeStep(w, r, h.svc.CompletePayment, "payment recorded")
}

// CompleteSetup implements POST /onboarding/setup
func (h *Handler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	h.completeStep(w, r, h.svc.CompleteSetup, "setup completed")
}

func (h *Handler) completeStep(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenantID uuid.UUID) (service.EffectiveState, error), message string) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusBadRequest, codeNoTenant, "no tenant resolved for the request")
		return
	}

	if _, err := op(r.Context(), tc.TenantID); err != nil {
		h.failForError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

func (h *Handler) failForError(w http.ResponseWriter, r *http.Request, err error) {
	var constraintErr *persistence.ConstraintError
	switch {
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, service.ErrPlanRequired):
		h.fail(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
	case errors.Is(err, persistence.ErrTenantNotFound):
		h.fail(w, http.StatusBadRequest, codeNoTenant, "tenant not found")
	case errors.As(err, &constraintErr):
		h.fail(w, http.StatusConflict, codeConflict, "the change conflicts with existing data")
	default:
		h.requestLogger(r).Error("onboarding operation failed", zap.Error(err))
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

func toStatusResponse(state service.EffectiveState) statusResponse {
	steps := make([]string, 0, len(state.CompletedSteps))
	for _, step := range state.CompletedSteps {
		steps = append(steps, string(step))
	}
	return statusResponse{
		Status:         state.Status,
		CurrentStep:    string(state.CurrentStep),
		CompletedSteps: steps,
	}
}

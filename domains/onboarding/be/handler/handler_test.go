package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillbooks/quillbooks-core/domains/onboarding/be/service"
	"github.com/quillbooks/quillbooks-core/platform/go/kvcache"
	"github.com/quillbooks/quillbooks-core/platform/go/tenant"
)

type memoryRepo struct {
	rec service.Record
}

func (m *memoryRepo) Get(ctx context.Context, tenantID uuid.UUID) (service.Record, error) {
	return m.rec, nil
}

func (m *memoryRepo) Save(ctx context.Context, tenantID uuid.UUID, rec service.Record) error {
	m.rec = rec
	return nil
}

type memoryAttrs struct {
	attrs map[string]string
}

func (m *memoryAttrs) Attributes(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	return m.attrs, nil
}

func (m *memoryAttrs) SetAttributes(ctx context.Context, tenantID uuid.UUID, attrs map[string]string) error {
	m.attrs = attrs
	return nil
}

type noopBusiness struct{}

func (noopBusiness) SaveProfile(ctx context.Context, tenantID uuid.UUID, info service.BusinessInfo) error {
	return nil
}

func (noopBusiness) SaveSubscription(ctx context.Context, tenantID uuid.UUID, planCode string, isFree bool) error {
	return nil
}

func newTestHandler(t *testing.T, rec service.Record) (*Handler, uuid.UUID) {
	t.Helper()
	svc := service.New(&memoryRepo{rec: rec}, &memoryAttrs{}, kvcache.NewMemory(), noopBusiness{}, zap.NewNop())
	return New(svc, zap.NewNop()), uuid.New()
}

func doRequest(h http.Handler, method, target, body string, tenantID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tenantID != uuid.Nil {
		tc := tenant.Context{TenantID: tenantID, ResolvedFrom: tenant.SourceHeader}
		req = req.WithContext(tenant.IntoContext(req.Context(), tc))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusReturnsReconciledState(t *testing.T) {
	h, tenantID := newTestHandler(t, service.Record{
		Exists:         true,
		CurrentStep:    service.StepSubscription,
		CompletedSteps: []service.Step{service.StepBusinessInfo},
	})

	res := doRequest(h.Routes(), http.MethodGet, "/status", "", tenantID)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Status         string   `json:"status"`
		CurrentStep    string   `json:"currentStep"`
		CompletedSteps []string `json:"completedSteps"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "in_progress", body.Status)
	require.Equal(t, "subscription", body.CurrentStep)
	require.Equal(t, []string{"business_info"}, body.CompletedSteps)
}

func TestStatusWithoutTenantIsRejected(t *testing.T) {
	h, _ := newTestHandler(t, service.Record{})

	res := doRequest(h.Routes(), http.MethodGet, "/status", "", uuid.Nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "NO_TENANT", body.Error)
}

func TestCompleteBusinessInfoRejectsInvalidPayload(t *testing.T) {
	h, tenantID := newTestHandler(t, service.Record{Exists: true, CurrentStep: service.StepBusinessInfo})

	res := doRequest(h.Routes(), http.MethodPost, "/business-info", `{"tradeName":"no legal name"}`, tenantID)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_ERROR", body.Error)
}

func TestSubscriptionThenSetupCompletesFlow(t *testing.T) {
	h, tenantID := newTestHandler(t, service.Record{Exists: true, CurrentStep: service.StepBusinessInfo})

	res := doRequest(h.Routes(), http.MethodPost, "/business-info", `{"legalName":"Quill Books Ltd"}`, tenantID)
	require.Equal(t, http.StatusOK, res.Code)

	res = doRequest(h.Routes(), http.MethodPost, "/subscription", `{"planCode":"starter-free","isFree":true}`, tenantID)
	require.Equal(t, http.StatusOK, res.Code)

	res = doRequest(h.Routes(), http.MethodPost, "/setup", "", tenantID)
	require.Equal(t, http.StatusOK, res.Code)

	res = doRequest(h.Routes(), http.MethodGet, "/status", "", tenantID)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Status      string `json:"status"`
		CurrentStep string `json:"currentStep"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "complete", body.Status)
	require.Equal(t, "complete", body.CurrentStep)
}

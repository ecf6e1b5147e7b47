package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks-core/platform/go/auth/devtoken"
	"github.com/quillbooks/quillbooks-core/platform/go/session"
)

// devSessionProvider mints unsigned tokens locally so the session lifecycle
// endpoints work without a Firebase project. Dev mode only.
type devSessionProvider struct {
	uid       string
	projectID string
	tenant    string
}

func (p *devSessionProvider) CurrentUser(ctx context.Context) (session.User, error) {
	return session.User{
		ID:     p.uid,
		Email:  p.uid + "@dev.local",
		Claims: map[string]string{"tenant": p.tenant},
	}, nil
}

func (p *devSessionProvider) SessionTokens(ctx context.Context) (session.TokenPair, error) {
	now := time.Now().UTC()
	token, err := devtoken.BuildUnsignedFirebaseToken(devtoken.Params{
		ProjectID: p.projectID,
		Tenant:    p.tenant,
		UserID:    p.uid,
		Email:     p.uid + "@dev.local",
		Name:      p.uid,
	}, now)
	if err != nil {
		return session.TokenPair{}, fmt.Errorf("mint dev token: %w", err)
	}
	return session.TokenPair{
		AccessToken:   token,
		IdentityToken: token,
		ExpiresAt:     now.Add(time.Hour),
	}, nil
}

// localAttributeStore keeps onboarding attributes in process memory. It stands
// in for Firebase custom claims when AUTH_PROVIDER=dev.
type localAttributeStore struct {
	mu    sync.Mutex
	attrs map[uuid.UUID]map[string]string
}

func newLocalAttributeStore() *localAttributeStore {
	return &localAttributeStore{attrs: make(map[uuid.UUID]map[string]string)}
}

func (s *localAttributeStore) Attributes(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.attrs[tenantID]))
	for k, v := range s.attrs[tenantID] {
		out[k] = v
	}
	return out, nil
}

func (s *localAttributeStore) SetAttributes(ctx context.Context, tenantID uuid.UUID, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.attrs[tenantID]
	if existing == nil {
		existing = make(map[string]string, len(attrs))
		s.attrs[tenantID] = existing
	}
	for k, v := range attrs {
		existing[k] = v
	}
	return nil
}

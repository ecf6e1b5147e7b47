package gcp

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/quillbooks/quillbooks-core/platform/go/session"
	"github.com/quillbooks/quillbooks-core/platform/go/setups"
)

// GetApp Creates a Firebase App instance.
func GetApp(ctx context.Context, pathToJson *string) (app *firebase.App, err error) {
	if pathToJson != nil {
		sa := option.WithCredentialsFile(*pathToJson)
		app, err = firebase.NewApp(ctx, nil, sa)
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}

	if err != nil {
		return nil, err
	}
	return
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
// Firestore is not used in this project, so no Firestore client is created.
func InitFirebaseAuth(ctx context.Context) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx, setups.DevFirebasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}

// Custom tokens minted through the Admin SDK are valid for one hour.
const customTokenTTL = time.Hour

// UserSessionProvider adapts a Firebase Auth client to the session lifecycle
// manager for one user. The manager owns timeouts and retry policy; this type
// only performs the round trips.
type UserSessionProvider struct {
	client *firebaseauth.Client
	uid    string
}

// NewUserSessionProvider builds a provider bound to the given Firebase uid.
func NewUserSessionProvider(client *firebaseauth.Client, uid string) *UserSessionProvider {
	if client == nil {
		panic("firebase auth client is required")
	}
	if uid == "" {
		panic("uid is required")
	}
	return &UserSessionProvider{client: client, uid: uid}
}

func (p *UserSessionProvider) CurrentUser(ctx context.Context) (session.User, error) {
	record, err := p.client.GetUser(ctx, p.uid)
	if err != nil {
		return session.User{}, fmt.Errorf("get user %s: %w", p.uid, err)
	}

	claims := make(map[string]string, len(record.CustomClaims))
	for k, v := range record.CustomClaims {
		if s, ok := v.(string); ok {
			claims[k] = s
		}
	}

	return session.User{ID: record.UID, Email: record.Email, Claims: claims}, nil
}

func (p *UserSessionProvider) SessionTokens(ctx context.Context) (session.TokenPair, error) {
	token, err := p.client.CustomToken(ctx, p.uid)
	if err != nil {
		return session.TokenPair{}, fmt.Errorf("mint custom token for %s: %w", p.uid, err)
	}

	return session.TokenPair{
		AccessToken:   token,
		IdentityToken: token,
		ExpiresAt:     time.Now().UTC().Add(customTokenTTL),
	}, nil
}

// OwnerLookup resolves the Firebase uid of the user owning a tenant.
type OwnerLookup func(ctx context.Context, tenantID uuid.UUID) (string, error)

// TenantAttributeStore reads and writes onboarding attributes as Firebase
// custom claims on the tenant's owning user. Writes merge with existing
// claims so unrelated claims (roles, admin flags) survive.
type TenantAttributeStore struct {
	client *firebaseauth.Client
	owner  OwnerLookup
}

// NewTenantAttributeStore builds a store over the given client and owner
// lookup.
func NewTenantAttributeStore(client *firebaseauth.Client, owner OwnerLookup) *TenantAttributeStore {
	if client == nil {
		panic("firebase auth client is required")
	}
	if owner == nil {
		panic("owner lookup is required")
	}
	return &TenantAttributeStore{client: client, owner: owner}
}

func (s *TenantAttributeStore) Attributes(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	uid, err := s.owner(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant owner: %w", err)
	}

	record, err := s.client.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}

	attrs := make(map[string]string, len(record.CustomClaims))
	for k, v := range record.CustomClaims {
		if str, ok := v.(string); ok {
			attrs[k] = str
		}
	}
	return attrs, nil
}

func (s *TenantAttributeStore) SetAttributes(ctx context.Context, tenantID uuid.UUID, attrs map[string]string) error {
	uid, err := s.owner(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant owner: %w", err)
	}

	record, err := s.client.GetUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("get user %s: %w", uid, err)
	}

	merged := make(map[string]interface{}, len(record.CustomClaims)+len(attrs))
	for k, v := range record.CustomClaims {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}

	if err := s.client.SetCustomUserClaims(ctx, uid, merged); err != nil {
		return fmt.Errorf("set custom claims for %s: %w", uid, err)
	}
	return nil
}

package main

import (
	"context"
	"net/http"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	platformauth "github.com/quillbooks/quillbooks-core/platform/go/auth"
	"github.com/quillbooks/quillbooks-core/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured
// provider. The returned Firebase client is nil in dev mode; callers fall back
// to local substitutes for the session provider and attribute store.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) (func(http.Handler) http.Handler, *firebaseauth.Client) {
	var verify platformauth.VerifyFunc
	var fbAuth *firebaseauth.Client

	switch cfg.AuthProvider {
	case "firebase":
		_, client, err := gcp.InitFirebaseAuth(ctx)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		fbAuth = client
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	// Tenant enforcement does not happen here: the tenant middleware resolves
	// the active tenant from the request and falls back to the configured
	// default, so a token without a tenant claim is still serviceable.
	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor), fbAuth
}

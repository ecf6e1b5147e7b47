package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformauth "github.com/quillbooks/quillbooks-core/platform/go/auth"
	platformlogging "github.com/quillbooks/quillbooks-core/platform/go/logging"
	"github.com/quillbooks/quillbooks-core/platform/go/session"
)

type sessionResponse struct {
	Success bool            `json:"success"`
	Session *sessionPayload `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type sessionPayload struct {
	IdentityToken string `json:"identityToken"`
	IssuedAt      string `json:"issuedAt"`
	ExpiresAt     string `json:"expiresAt"`
}

// sessionRoutes exposes the credential lifecycle for the authenticated user.
// Every route runs behind the auth middleware; the registry shares one manager
// per uid so concurrent tabs and devices collapse into single refresh flights.
func sessionRoutes(registry *session.Registry, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Post("/refresh", refreshSessionHandler(registry, logger))
	r.Post("/signout", signOutSessionHandler(registry))
	return r
}

func refreshSessionHandler(registry *session.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, ok := platformauth.UserFromContext(r.Context())
		if !ok || creds == nil || creds.Id == "" {
			writeSessionJSON(w, http.StatusUnauthorized, sessionResponse{
				Error:   "UNAUTHENTICATED",
				Message: "no authenticated user on the request",
			})
			return
		}

		cred, err := registry.ForUser(creds.Id).Refresh(r.Context())
		if err != nil {
			if errors.Is(err, session.ErrIdentityUnavailable) {
				writeSessionJSON(w, http.StatusServiceUnavailable, sessionResponse{
					Error:   "IDENTITY_UNAVAILABLE",
					Message: "identity provider is unavailable, try again later",
				})
				return
			}
			platformlogging.FromRequest(r, logger).Error("refresh session", zap.Error(err))
			writeSessionJSON(w, http.StatusInternalServerError, sessionResponse{
				Error:   "INTERNAL_ERROR",
				Message: "an unexpected error occurred",
			})
			return
		}

		writeSessionJSON(w, http.StatusOK, sessionResponse{
			Success: true,
			Session: &sessionPayload{
				IdentityToken: cred.IdentityToken,
				IssuedAt:      cred.IssuedAt.UTC().Format(time.RFC3339),
				ExpiresAt:     cred.ExpiresAt.UTC().Format(time.RFC3339),
			},
		})
	}
}

func signOutSessionHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, ok := platformauth.UserFromContext(r.Context())
		if !ok || creds == nil || creds.Id == "" {
			writeSessionJSON(w, http.StatusUnauthorized, sessionResponse{
				Error:   "UNAUTHENTICATED",
				Message: "no authenticated user on the request",
			})
			return
		}

		registry.ForUser(creds.Id).SignOut()
		registry.Evict(creds.Id)

		writeSessionJSON(w, http.StatusOK, sessionResponse{Success: true})
	}
}

func writeSessionJSON(w http.ResponseWriter, status int, body sessionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

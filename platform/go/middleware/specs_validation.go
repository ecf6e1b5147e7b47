package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
)

// ValidateAuthenticationViaSwagger satisfies the validator's AuthenticationFunc
// for operations declaring bearerAuth. It only checks that a bearer token is
// present; the JWT middleware upstream already verified it, and operations
// without a security requirement pass through untouched.
func ValidateAuthenticationViaSwagger(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input != nil && input.SecuritySchemeName == "bearerAuth" {
		r := input.RequestValidationInput.Request
		if r == nil {
			return fmt.Errorf("no request in validation input")
		}
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fmt.Errorf("missing or invalid Authorization header")
		}
	}
	return nil
}

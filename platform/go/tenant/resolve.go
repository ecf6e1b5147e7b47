package tenant

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// ParamName is the query/body parameter carrying an explicit tenant id.
	ParamName = "tenantId"
	// HeaderName is the dedicated request header.
	HeaderName = "X-Tenant-Id"
	// CookieName is the session cookie written by the web client.
	CookieName = "tenantId"
	// ClaimName is the identity-provider custom claim.
	ClaimName = "tenant"
)

// ErrNoTenant is returned when no source yields a well-formed tenant id.
// Callers must surface it as a client error, never a 5xx.
var ErrNoTenant = errors.New("no tenant could be resolved for the request")

// Resolver derives the active tenant for a request. DefaultTenantID is the
// last-resort value for non-multi-tenant deployments; uuid.Nil disables it.
type Resolver struct {
	DefaultTenantID uuid.UUID
}

// Resolve walks the sources in priority order: explicit parameter (query
// string or JSON body field), header, cookie, identity claim, configured
// default. A syntactically invalid candidate is treated as absent and
// resolution continues. The request body, when read, is restored so handlers
// downstream still see it in full.
func (rs Resolver) Resolve(r *http.Request, claims map[string]string) (Context, error) {
	if id, ok := parseCandidate(r.URL.Query().Get(ParamName)); ok {
		return Context{TenantID: id, ResolvedFrom: SourceParam}, nil
	}

	if id, ok := parseCandidate(bodyCandidate(r)); ok {
		return Context{TenantID: id, ResolvedFrom: SourceParam}, nil
	}

	if id, ok := parseCandidate(r.Header.Get(HeaderName)); ok {
		return Context{TenantID: id, ResolvedFrom: SourceHeader}, nil
	}

	if cookie, err := r.Cookie(CookieName); err == nil {
		if id, ok := parseCandidate(cookie.Value); ok {
			return Context{TenantID: id, ResolvedFrom: SourceCookie}, nil
		}
	}

	if claims != nil {
		if id, ok := parseCandidate(claims[ClaimName]); ok {
			return Context{TenantID: id, ResolvedFrom: SourceClaim}, nil
		}
	}

	if rs.DefaultTenantID != uuid.Nil {
		return Context{TenantID: rs.DefaultTenantID, ResolvedFrom: SourceDefault}, nil
	}

	return Context{}, ErrNoTenant
}

// maxBodyPeek bounds how much of a request body is buffered while looking for
// the tenant field. Bodies larger than this are left to the handler untouched.
const maxBodyPeek = 1 << 20

// bodyCandidate extracts the tenant field from a JSON request body. The bytes
// it consumes are stitched back onto r.Body before returning.
func bodyCandidate(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(ct), "application/json") {
		return ""
	}

	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), r.Body), r.Body}
	if err != nil || len(peeked) > maxBodyPeek {
		return ""
	}

	var fields struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.Unmarshal(peeked, &fields); err != nil {
		return ""
	}
	return fields.TenantID
}

// parseCandidate validates a candidate against the strict UUID format.
func parseCandidate(raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

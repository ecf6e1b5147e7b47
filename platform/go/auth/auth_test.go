package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTenantID(t *testing.T) {
	tenant := "4f6c3ad2-8f6a-4f30-9f0e-2d3f5a1b6c7d"
	firebaseTenant := "tenant-firebase"

	testCases := []struct {
		name   string
		claims map[string]interface{}
		want   *string
	}{
		{
			name:   "top level tenant claim",
			claims: map[string]interface{}{"tenant": tenant},
			want:   &tenant,
		},
		{
			name: "firebase tenant fallback",
			claims: map[string]interface{}{
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &firebaseTenant,
		},
		{
			name: "top level claim wins over firebase",
			claims: map[string]interface{}{
				"tenant":   tenant,
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &tenant,
		},
		{
			name:   "missing tenant",
			claims: map[string]interface{}{},
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTenantID(tc.claims)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tc.want, *got)
		})
	}
}

func TestDefaultCredentialExtractorWithTenantClaim(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":            "user-123",
		"email":          "user@example.com",
		"tenant":         "4f6c3ad2-8f6a-4f30-9f0e-2d3f5a1b6c7d",
		"isAdmin":        true,
		"email_verified": true,
	})
	require.NoError(t, err)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, "4f6c3ad2-8f6a-4f30-9f0e-2d3f5a1b6c7d", *creds.TenantID)
	require.True(t, creds.IsAdmin)
	require.Equal(t, "user-123", creds.Id)
}

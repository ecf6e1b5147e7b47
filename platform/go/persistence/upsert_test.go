package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertSpecSQL(t *testing.T) {
	spec := UpsertSpec{
		Table:      "subscriptions",
		KeyColumn:  "tenant_id",
		InsertOnly: []string{"subscription_id"},
		Columns:    []string{"plan_code", "status", "updated_at"},
		Defaults:   map[string]string{"status": "'active'"},
		Returning:  []string{"subscription_id", "plan_code"},
	}

	sql := spec.SQL()

	require.Contains(t, sql,
		"INSERT INTO subscriptions (tenant_id, subscription_id, plan_code, status, updated_at) VALUES ($1, $2, $3, COALESCE($4, 'active'), $5)")
	require.Contains(t, sql, "ON CONFLICT (tenant_id) DO UPDATE SET")
	require.Contains(t, sql, "plan_code = COALESCE($3, subscriptions.plan_code)")
	require.Contains(t, sql, "status = COALESCE($4, subscriptions.status)",
		"a nil field keeps the stored value on conflict")
	require.NotContains(t, sql, "EXCLUDED",
		"insert defaults must never overwrite existing values")
	require.Contains(t, sql, "RETURNING subscription_id, plan_code")
}

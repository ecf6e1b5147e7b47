package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestTranslateErrorMapsConstraintViolations(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           codeUniqueViolation,
		ConstraintName: "business_profiles_tenant_id_key",
		ColumnName:     "tenant_id",
	}

	err := TranslateError(fmt.Errorf("insert profile: %w", pgErr))

	var constraintErr *ConstraintError
	require.ErrorAs(t, err, &constraintErr)
	require.Equal(t, "business_profiles_tenant_id_key", constraintErr.Constraint)
	require.Equal(t, "tenant_id", constraintErr.Column)
}

func TestTranslateErrorPassesTypedErrorsThrough(t *testing.T) {
	provErr := &ProvisioningError{Stage: "apply tenant ddl", Benign: true, cause: errors.New("dup")}
	require.Same(t, provErr, TranslateError(error(provErr)))

	require.ErrorIs(t, TranslateError(fmt.Errorf("lookup: %w", ErrTenantNotFound)), ErrTenantNotFound)
}

func TestTranslateErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := TranslateError(cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "database operation failed")
}

func TestIsDuplicateObject(t *testing.T) {
	require.True(t, isDuplicateObject(&pgconn.PgError{Code: codeDuplicateTable}))
	require.True(t, isDuplicateObject(&pgconn.PgError{Code: codeDuplicateObject}))
	require.False(t, isDuplicateObject(&pgconn.PgError{Code: codeCheckViolation}))
	require.False(t, isDuplicateObject(errors.New("not a pg error")))
}

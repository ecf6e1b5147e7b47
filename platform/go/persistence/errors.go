package persistence

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTenantNotFound indicates the request referenced a tenant this database
// has never seen and cannot lazily provision.
var ErrTenantNotFound = errors.New("tenant not found")

// ProvisioningError reports a failure while creating a tenant's schema
// objects. Benign marks "already exists" races between concurrent first
// accesses; those are retried and never surface to callers.
type ProvisioningError struct {
	Stage  string
	Benign bool
	cause  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("tenant provisioning failed at %s: %v", e.Stage, e.cause)
}

func (e *ProvisioningError) Unwrap() error {
	return e.cause
}

// ConstraintError reports a DML statement rejected by a database constraint.
// Column is populated when the driver can attribute the violation.
type ConstraintError struct {
	Constraint string
	Column     string
	cause      error
}

func (e *ConstraintError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("constraint %s violated on column %s: %v", e.Constraint, e.Column, e.cause)
	}
	return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.cause)
}

func (e *ConstraintError) Unwrap() error {
	return e.cause
}

// pg error codes this layer cares about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeDuplicateTable      = "42P07"
	codeDuplicateObject     = "42710"
	codeDuplicateSchema     = "42P06"
)

// TranslateError maps raw driver errors into the layer's typed taxonomy.
// Errors already translated pass through unchanged; anything unrecognized is
// wrapped so no raw pgx error crosses the service boundary unannotated.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var provErr *ProvisioningError
	var constraintErr *ConstraintError
	if errors.As(err, &provErr) || errors.As(err, &constraintErr) ||
		errors.Is(err, ErrTenantNotFound) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
			return &ConstraintError{
				Constraint: pgErr.ConstraintName,
				Column:     pgErr.ColumnName,
				cause:      err,
			}
		}
	}

	return fmt.Errorf("database operation failed: %w", err)
}

// isDuplicateObject reports whether err is an "already exists" DDL failure,
// the benign outcome of two transactions provisioning the same tenant at once.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeDuplicateTable, codeDuplicateObject, codeDuplicateSchema, codeUniqueViolation:
		return true
	}
	return false
}

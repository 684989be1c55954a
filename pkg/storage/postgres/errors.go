package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/domain"
)

// SQLSTATE codes the isolation layer reacts to
const (
	codeInsufficientPrivilege = "42501"
	codeUniqueViolation       = "23505"
	codeForeignKeyViolation   = "23503"
	codeCheckViolation        = "23514"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
)

func pqCode(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err violates the named unique constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, codeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err violates the named foreign key
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, codeForeignKeyViolation, constraint)
}

// IsCheckViolation reports whether err violates the named check constraint
func IsCheckViolation(err error, constraint string) bool {
	return hasCode(err, codeCheckViolation, constraint)
}

func hasCode(err error, code, constraint string) bool {
	pqErr, ok := pqCode(err)
	if !ok || string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsWriteDenied reports whether a row-level security policy or a tenant_id
// immutability trigger rejected the statement
func IsWriteDenied(err error) bool {
	pqErr, ok := pqCode(err)
	return ok && string(pqErr.Code) == codeInsufficientPrivilege
}

func isRetryable(err error) bool {
	pqErr, ok := pqCode(err)
	if !ok {
		return false
	}
	return string(pqErr.Code) == codeSerializationFailure || string(pqErr.Code) == codeDeadlockDetected
}

// classify converts policy rejections into domain.ErrPermissionDenied and
// leaves every other error untouched
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrPermissionDenied) {
		return err
	}
	if IsWriteDenied(err) {
		pqErr, _ := pqCode(err)
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, pqErr.Message)
	}
	return err
}

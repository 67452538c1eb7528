package utils

import (
	"errors"
	"fmt"

	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/compliance_backend/tenant"
)

var ErrInvalidTenant = tenant.ErrInvalidTenant

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrDuplicateAudit    = errors.New("duplicate audit")
	ErrDuplicateSchedule = errors.New("duplicate schedule")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrIllegalState      = errors.New("illegal state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingIdentity   = errors.New("actor identity is required")
	ErrStorageFailure    = errors.New("storage failure")
)

// StorageError is a mid-transaction fault. The transaction has been rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageFailure, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// ValidationError carries per-field messages from the validator.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidInput, e.Fields)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

var domainErrors = []error{
	ErrInvalidTenant,
	ErrorRecordNotFound,
	ErrDuplicateAudit,
	ErrDuplicateSchedule,
	ErrIllegalTransition,
	ErrIllegalState,
	ErrInvalidInput,
	ErrMissingIdentity,
}

// IsDomainError reports expected outcomes the caller maps to a 4xx response.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AsStorageFailure leaves domain errors untouched and wraps everything else.
func AsStorageFailure(op string, err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrStorageFailure) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDuplicateKeyError reports MySQL error 1062 (unique constraint).
func IsDuplicateKeyError(err error) bool {
	var mysqlErr *sqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

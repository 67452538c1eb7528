package utils

import (
	"errors"
	"fmt"
	"testing"

	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsStorageFailureKeepsDomainErrors(t *testing.T) {
	domain := []error{
		fmt.Errorf("%w: audit 3", ErrorRecordNotFound),
		fmt.Errorf("%w: plan 1", ErrIllegalTransition),
		ErrDuplicateSchedule,
		InvalidField("plan_no", "required"),
		ErrInvalidTenant,
	}
	for _, err := range domain {
		got := AsStorageFailure("op", err)
		assert.Same(t, err, got)
		assert.False(t, errors.Is(got, ErrStorageFailure), err.Error())
	}
}

func TestAsStorageFailureWrapsEverythingElse(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := AsStorageFailure("CreateAudit", cause)

	require.True(t, errors.Is(err, ErrStorageFailure))
	require.True(t, errors.Is(err, cause))
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "CreateAudit", storageErr.Op)

	// already wrapped
	assert.Same(t, err, AsStorageFailure("outer", err))
	assert.NoError(t, AsStorageFailure("op", nil))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(fmt.Errorf("insert: %w", &sqldriver.MySQLError{Number: 1062})))
	assert.False(t, IsDuplicateKeyError(&sqldriver.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKeyError(errors.New("duplicate")))
}

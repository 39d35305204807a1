package nexuserrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapSQLError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    interface{}
	}{
		{"unique", "UNIQUE constraint failed: users.email", &ValidationError{}},
		{"unique case insensitive", "uniqueviolation on users", &ValidationError{}},
		{"foreign key", "FOREIGN KEY constraint failed", &ValidationError{}},
		{"locked", "database is locked", &TransactionError{}},
		{"busy", "database is busy", &TransactionError{}},
		{"missing table", "no such table: users", &StateError{}},
		{"unclassified", "disk I/O error", &SyncError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapSQLError(tt.message, nil)
			assert.IsType(t, tt.want, err)
		})
	}
}

func TestMapSQLErrorPreservesCause(t *testing.T) {
	cause := errors.New("driver failure")
	err := MapSQLError("no such table: widgets", cause)

	stateErr, ok := AsState(err)
	assert.True(t, ok)
	assert.Equal(t, "table_missing", stateErr.CurrentState)
	assert.Equal(t, "table_exists", stateErr.ExpectedState)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&TransactionError{Message: "busy"}))
	assert.True(t, IsRetryable(&CircuitBreakerOpen{Name: "x", RetryAfter: time.Second}))
	assert.False(t, IsRetryable(&ValidationError{Message: "bad"}))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestValidationExceptionMessage(t *testing.T) {
	err := NewValidationException("invalid entity", []string{"name required", "age must be positive"})
	assert.Contains(t, err.Error(), "invalid entity")
	assert.Contains(t, err.Error(), "name required")
}

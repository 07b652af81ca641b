package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
)

func TestEntityError_Error(t *testing.T) {
	err := New(ErrCategoryInit, CodeHandleClosed, "database handle is closed")
	expected := "[INIT:HANDLE_CLOSED] database handle is closed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEntityError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("no such table: tb_user")
	err := Wrap(ErrCategoryStore, CodeStatementRejected, "query failed", cause)
	expected := "[STORE:STATEMENT_REJECTED] query failed: no such table: tb_user"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEntityError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryMigration, CodeStepFailed, "step failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestEntityError_Is(t *testing.T) {
	err1 := New(ErrCategoryInit, CodeBindingConflict, "first")
	err2 := New(ErrCategoryInit, CodeBindingConflict, "second")
	err3 := New(ErrCategoryInit, CodeNoShardKey, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStore, CodeBusy, true},
		{ErrCategoryStore, CodeConstraint, false},
		{ErrCategoryStore, CodeStatementRejected, false},
		{ErrCategoryInit, CodeHandleClosed, false},
		{ErrCategoryMarshal, CodeAssignFailed, false},
		{ErrCategoryMigration, CodeStepFailed, false},
		{ErrCategoryValidation, CodeInvalidConfig, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestNewStoreError_Classification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  string
	}{
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, CodeConstraint},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, CodeBusy},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, CodeBusy},
		{"plain", fmt.Errorf("near \"SELEC\": syntax error"), CodeStatementRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStoreError("exec failed", tt.cause)
			if err.Category != ErrCategoryStore {
				t.Errorf("category = %s, want STORE", err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("code = %s, want %s", err.Code, tt.code)
			}
		})
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewMigrationError(CodeShardMissing, "shard missing", nil))

	if got := GetCategory(err); got != ErrCategoryMigration {
		t.Errorf("GetCategory = %q, want MIGRATION", got)
	}
	if got := GetCode(err); got != CodeShardMissing {
		t.Errorf("GetCode = %q, want %q", got, CodeShardMissing)
	}
	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
}

func TestWithDetails(t *testing.T) {
	base := New(ErrCategoryInit, CodeBindingConflict, "conflict")
	withDetails := base.WithDetails(map[string]interface{}{"dao_type": "UserDao"})

	if base.Details != nil {
		t.Error("WithDetails should not mutate the original")
	}
	if withDetails.Details["dao_type"] != "UserDao" {
		t.Errorf("expected dao_type detail, got %v", withDetails.Details)
	}
}

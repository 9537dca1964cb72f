package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/tabload/internal/input"
	"github.com/JonMunkholm/tabload/internal/validate"
)

func TestMapError(t *testing.T) {
	failed := validate.NewErrorReport()
	failed.Add("score", validate.Issue{Code: validate.CodeInvalid, Message: "Ensure column values are valid numbers", Rows: []int{1}})

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint \"orders_pkey\""), "DB001"},
		{"unique constraint", errors.New("UNIQUE constraint failed: orders.id"), "DB002"},
		{"foreign key", errors.New("insert violates foreign key constraint"), "DB003"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB004"},
		{"timeout", errors.New("i/o timeout"), "DB006"},
		{"sqlite missing table", errors.New("no such table: orders"), "DB008"},
		{"postgres missing table", errors.New(`relation "orders" does not exist`), "DB008"},
		{"not null", errors.New("NOT NULL constraint failed: orders.name"), "DB009"},
		{"validation failed", &ValidationFailedError{Entity: "orders", Report: failed}, "VAL001"},
		{"unknown entity", fmt.Errorf("%w: invoices", ErrUnknownEntity), "SCH001"},
		{"empty file", fmt.Errorf("read upload: %w", input.ErrEmptyFile), "FILE007"},
		{"unsupported format", errors.New("unsupported format (content type \"application/pdf\", file \"\")"), "FILE005"},
		{"too many ingests", ErrTooManyIngests, "ING001"},
		{"cancelled", context.Canceled, "ING002"},
		{"deadline", context.DeadlineExceeded, "ING003"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("DUPLICATE KEY value"), "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A row with this key already exists (Code: DB001). Remove the duplicate keys from your file"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("duplicate key"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := errors.New("duplicate key value")
	userErr := NewUserError(techErr)
	if userErr.Error() != "A row with this key already exists" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, techErr) {
		t.Error("Unwrap() should return original error")
	}
}

// Package core ties schemas, validation and persistence together into the
// ingest operations used by the HTTP API and the CLI.
//
// # Error Codes Reference
//
// Technical errors are mapped to user-facing messages with a code that
// users can quote to support. Codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A row with this key already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: A value that must be unique already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock"
//	DB008 - Missing table: The target table does not exist
//	        Patterns: "no such table", "does not exist"
//	DB009 - Not null: A column the database requires was empty
//	        Patterns: "not-null constraint", "not null constraint"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Validation failed: Some rows did not pass validation
//	         Patterns: "validation failed"
//	VAL002 - Not a dataset: The payload is not tabular
//	         Patterns: "expected a dataset"
//	VAL003 - Unknown hook: A schema references an unregistered hook
//	         Patterns: "unknown hook"
//	VAL004 - Unknown returning column: A requested column is not in the schema
//	         Patterns: "unknown returning column"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: Request body exceeds the configured limit
//	          Patterns: "request body too large"
//	FILE002 - Invalid CSV: File could not be parsed as CSV
//	          Patterns: "parse csv"
//	FILE003 - Invalid JSON: File could not be parsed as JSON
//	          Patterns: "parse json"
//	FILE004 - Encoding: Character encoding is not supported
//	          Patterns: "unsupported encoding"
//	FILE005 - Format: Content type is not supported
//	          Patterns: "unsupported format", "cannot detect format"
//	FILE006 - No file: No file was provided
//	          Patterns: "no file provided"
//	FILE007 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//
// # Ingest Errors (ING001-ING099)
//
//	ING001 - System busy: Too many ingests in progress
//	         Patterns: "too many concurrent ingests"
//	ING002 - Request cancelled
//	         Patterns: "context canceled"
//	ING003 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Unknown entity: No schema is registered for the entity
//	         Patterns: "unknown entity"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Validation and schema errors come first: their messages may quote
	// column names that look like other patterns.
	// =========================================================================
	{
		pattern: "validation failed",
		msg: UserMessage{
			Message: "Some rows did not pass validation",
			Action:  "Review the per-column errors and fix the listed rows",
			Code:    "VAL001",
		},
	},
	{
		pattern: "expected a dataset",
		msg: UserMessage{
			Message: "The payload is not a table of rows",
			Action:  "Send records or columns, not a single value",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown hook",
		msg: UserMessage{
			Message: "The schema references a hook that is not registered",
			Action:  "Fix the schema definition or register the hook",
			Code:    "VAL003",
		},
	},
	{
		pattern: "unknown returning column",
		msg: UserMessage{
			Message: "A requested returning column is not part of the schema",
			Action:  "Request only columns the schema declares",
			Code:    "VAL004",
		},
	},
	{
		pattern: "unknown entity",
		msg: UserMessage{
			Message: "No schema is registered for this entity",
			Action:  "Check the entity name against GET /api/schemas",
			Code:    "SCH001",
		},
	},

	// =========================================================================
	// Database Constraint Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove the duplicate keys from your file",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A value that must be unique already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records are loaded first",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records are loaded first",
			Code:    "DB003",
		},
	},
	{
		pattern: "not-null constraint",
		msg: UserMessage{
			Message: "A column the database requires was empty",
			Action:  "Mark the column as required in the schema or supply values",
			Code:    "DB009",
		},
	},
	{
		pattern: "not null constraint",
		msg: UserMessage{
			Message: "A column the database requires was empty",
			Action:  "Mark the column as required in the schema or supply values",
			Code:    "DB009",
		},
	},

	// =========================================================================
	// Database Connection Errors
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "The target table does not exist",
			Action:  "Create the table before loading data",
			Code:    "DB008",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "The target table does not exist",
			Action:  "Create the table before loading data",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "parse json",
		msg: UserMessage{
			Message: "File is not valid JSON",
			Action:  "Send an array of records or an object of columns",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unsupported encoding",
		msg: UserMessage{
			Message: "Character encoding is not supported",
			Action:  "Save the file as UTF-8",
			Code:    "FILE004",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "File format is not supported",
			Action:  "Upload CSV, TSV or JSON",
			Code:    "FILE005",
		},
	},
	{
		pattern: "cannot detect format",
		msg: UserMessage{
			Message: "File format could not be determined",
			Action:  "Set a Content-Type header or use a .csv or .json file name",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach a file in the \"file\" form field",
			Code:    "FILE006",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header and data rows",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Ingest Errors
	// =========================================================================
	{
		pattern: "too many concurrent ingests",
		msg: UserMessage{
			Message: "System is busy processing other ingests",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "ING002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "ING003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
//
// Example:
//
//	msg := MapError(errors.New("duplicate key violation"))
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err for display as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern, as opposed to
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

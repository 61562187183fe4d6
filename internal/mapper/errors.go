package mapper

import (
	"errors"
	"fmt"
)

// Code categorizes store errors.
type Code string

const (
	// CodeNotFound indicates a query matched zero rows where one was required.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidTable indicates a schema declaration conflict: duplicate
	// primary key, uninferable column type, ambiguous or unknown
	// registration. These are programmer errors and fatal to startup.
	CodeInvalidTable Code = "INVALID_TABLE"

	// CodeInvalidData indicates a runtime value whose kind does not match
	// its declared column type, or persisted JSON that fails to decode.
	CodeInvalidData Code = "INVALID_DATA"
)

// Error is the single store-error kind every mapper failure derives
// from. Table and Column are populated where known.
type Error struct {
	Code    Code
	Message string
	Table   string
	Column  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("%s: %s (table=%s, column=%s)", e.Code, e.Message, e.Table, e.Column)
	case e.Table != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a zero-rows failure.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInvalidTable reports whether err is a schema declaration conflict.
func IsInvalidTable(err error) bool {
	return hasCode(err, CodeInvalidTable)
}

// IsInvalidData reports whether err is a runtime-kind or decode mismatch.
func IsInvalidData(err error) bool {
	return hasCode(err, CodeInvalidData)
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func notFound(table, message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Table: table}
}

func invalidTable(table, message string, cause error) *Error {
	return &Error{Code: CodeInvalidTable, Message: message, Table: table, Err: cause}
}

func invalidData(table, column, message string, cause error) *Error {
	return &Error{Code: CodeInvalidData, Message: message, Table: table, Column: column, Err: cause}
}

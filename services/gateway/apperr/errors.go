// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apperr defines the gateway's error taxonomy.
//
// Every failure path in the gateway produces one of these coded errors so
// that callers always receive a condition they can act on. Validation-class
// errors (bad_input, validation_error, unknown_table, unknown_operation,
// upload policy violations) are raised before the external store is ever
// contacted; external_store_error wraps vendor failures and is passed
// through with minimal reinterpretation.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error condition in the gateway taxonomy.
type Code string

const (
	// CodeBadInput is an input contract violation caught before dispatch.
	CodeBadInput Code = "bad_input"

	// CodeUnauthorized is a missing or invalid credential token.
	CodeUnauthorized Code = "unauthorized"

	// CodeValidation is a query-translation contract violation
	// (bad operator, column, or value shape).
	CodeValidation Code = "validation_error"

	// CodeUnknownTable is a schema registry lookup miss.
	CodeUnknownTable Code = "unknown_table"

	// CodeUnknownOperation is a procedure registry lookup miss.
	CodeUnknownOperation Code = "unknown_operation"

	// CodeTooManyFiles is an upload batch exceeding the file-count ceiling.
	CodeTooManyFiles Code = "too_many_files"

	// CodeFileTooLarge is an upload file exceeding the per-file size ceiling.
	CodeFileTooLarge Code = "file_too_large"

	// CodeExternalStore is an opaque failure from the vendor store.
	CodeExternalStore Code = "external_store_error"

	// CodeNotFound is an entity-level lookup miss on a write path that
	// requires a pre-fetch (the read path returns null instead).
	CodeNotFound Code = "not_found"
)

// Error is a coded gateway error. The Column/Operator/Value fields are
// populated for validation-class errors so the caller sees the specific
// offending field; Op carries the operation name for store errors.
type Error struct {
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Column   string `json:"column,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`
	Op       string `json:"operation,omitempty"`

	// Transient marks store failures that a read-classified operation may
	// retry. Mutations are never auto-retried regardless of this flag.
	Transient bool `json:"-"`

	err error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.err }

// HTTPStatus maps the error code to an HTTP response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadInput, CodeValidation, CodeUnknownTable, CodeTooManyFiles, CodeFileTooLarge:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUnknownOperation, CodeNotFound:
		return http.StatusNotFound
	case CodeExternalStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// BadInput reports an input contract violation.
func BadInput(format string, args ...any) *Error {
	return &Error{Code: CodeBadInput, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}

// Validation reports a query-translation violation for a specific column.
func Validation(column, operator string, value any, format string, args ...any) *Error {
	return &Error{
		Code:     CodeValidation,
		Message:  fmt.Sprintf(format, args...),
		Column:   column,
		Operator: operator,
		Value:    value,
	}
}

// UnknownTable reports a schema registry miss.
func UnknownTable(table string) *Error {
	return &Error{Code: CodeUnknownTable, Message: fmt.Sprintf("table %q is not declared in the schema", table)}
}

// UnknownOperation reports a procedure registry miss.
func UnknownOperation(name string) *Error {
	return &Error{Code: CodeUnknownOperation, Message: fmt.Sprintf("operation %q is not registered", name)}
}

// TooManyFiles reports an upload batch over the file-count ceiling.
func TooManyFiles(got, limit int) *Error {
	return &Error{Code: CodeTooManyFiles, Message: fmt.Sprintf("batch of %d files exceeds the limit of %d", got, limit)}
}

// FileTooLarge reports a single upload over the per-file size ceiling.
func FileTooLarge(name string, size, limit int64) *Error {
	return &Error{Code: CodeFileTooLarge, Message: fmt.Sprintf("file %q is %d bytes, limit is %d", name, size, limit)}
}

// ExternalStore wraps a vendor store failure. The operation name is attached
// for traceability; transient marks failures eligible for read-path retry.
func ExternalStore(op string, transient bool, err error) *Error {
	return &Error{
		Code:      CodeExternalStore,
		Message:   err.Error(),
		Op:        op,
		Transient: transient,
		err:       err,
	}
}

// NotFound reports an entity-level lookup miss.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or "" if err is not a gateway
// error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err is a store failure eligible for read-path
// retry.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

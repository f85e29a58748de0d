package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrInvalidGeneratedTable means the model's DDL did not survive sanitization.
	ErrInvalidGeneratedTable = errors.New("could not produce valid table")
	// ErrTableNotDetermined means no destination table could be resolved.
	ErrTableNotDetermined = errors.New("could not determine table name")
	// ErrUnsafeInput means free text looked like SQL injection.
	ErrUnsafeInput = errors.New("input rejected by SQL injection screen")
	// ErrEmptyUpload means the uploaded file had no data rows.
	ErrEmptyUpload = errors.New("uploaded file contains no rows")
)

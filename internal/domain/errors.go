package domain

import "errors"

var (
	// ErrFetchFailure means no indicator batch produced any data.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrMissingSourceFile means the disaster source file does not exist.
	ErrMissingSourceFile = errors.New("disaster source file not found")

	// ErrInvalidRange means a year range selects no usable year columns.
	ErrInvalidRange = errors.New("invalid year range")

	// ErrRenderFailure means a single indicator chart could not be drawn.
	ErrRenderFailure = errors.New("render failure")

	// ErrUnresolvedGaps means gap resolution left missing values behind.
	ErrUnresolvedGaps = errors.New("unresolved missing values")
)

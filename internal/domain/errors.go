package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures by how callers should react to them.
type ErrorKind string

const (
	// KindInput rejects a request before any external call.
	KindInput ErrorKind = "input"

	// KindProvider covers failed, throttled or timed out embedding calls.
	KindProvider ErrorKind = "provider"

	// KindIndexService covers an unreachable or failing vector index.
	KindIndexService ErrorKind = "index_service"

	// KindRepository covers relational store failures. No fallback exists below it.
	KindRepository ErrorKind = "repository"

	// KindConsistency marks index/store drift. Logged, never returned by search.
	KindConsistency ErrorKind = "consistency"

	// KindSync marks a write whose relational half succeeded but whose vector
	// index half did not.
	KindSync ErrorKind = "sync"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyQuery      = errors.New("search query is required")
	ErrInvalidID       = errors.New("invalid product id")
	ErrUnknownModel    = errors.New("unknown embedding model")
)

// Error is a classified failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, string(e.Kind))
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err, or anything it wraps, is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

func NewInputError(op string, cause error) *Error {
	return &Error{Kind: KindInput, Op: op, Cause: cause}
}

func NewProviderFailure(op, model string, cause error) *Error {
	return &Error{Kind: KindProvider, Op: op, Message: fmt.Sprintf("model %s", model), Cause: cause}
}

func NewIndexServiceFailure(op, index, namespace string, cause error) *Error {
	return &Error{Kind: KindIndexService, Op: op, Message: fmt.Sprintf("index %s/%s", index, namespace), Cause: cause}
}

func NewRepositoryFailure(op string, cause error) *Error {
	return &Error{Kind: KindRepository, Op: op, Cause: cause}
}

func NewSyncError(op string, productID int64, cause error) *Error {
	return &Error{Kind: KindSync, Op: op, Message: fmt.Sprintf("product %d", productID), Cause: cause}
}

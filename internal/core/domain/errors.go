package domain

import "errors"

// Rejection categories. Every rejected Verdict unwraps to exactly one of these.
var (
	ErrEmptyQuery       = errors.New("query must be a non-empty string")
	ErrQueryTooLong     = errors.New("query exceeds maximum length")
	ErrNotAllowed       = errors.New("only SELECT queries are allowed")
	ErrForbiddenKeyword = errors.New("query contains forbidden keyword")
	ErrMaliciousPattern = errors.New("query contains a potentially malicious pattern")
	ErrMultiStatement   = errors.New("multiple statements are not allowed")
	ErrObfuscation      = errors.New("character conversion functions are not allowed")
	ErrUnmaskable       = errors.New("query output cannot be checked against masked columns")
)

var (
	// ErrObjectNotFound marks execution errors caused by a reference to a table,
	// column or schema the engine cannot resolve. These are safe to show to the caller.
	ErrObjectNotFound = errors.New("invalid object reference")
	// ErrQueryTimeout marks statements cancelled by the engine or by a context deadline.
	ErrQueryTimeout = errors.New("query timed out or was cancelled")
	ErrQueryFailed  = errors.New("query execution failed")
	ErrNotFound     = errors.New("not found")
	ErrReadOnly     = errors.New("server is in read-only mode")
	ErrInvalidInput = errors.New("invalid input")
)

// ObjectNotFoundError carries the engine's own description of an unresolvable
// object reference, e.g. `relation "orders" does not exist`.
type ObjectNotFoundError struct {
	Detail string
}

func (e *ObjectNotFoundError) Error() string {
	if e.Detail == "" {
		return ErrObjectNotFound.Error()
	}
	return ErrObjectNotFound.Error() + ": " + e.Detail
}

func (e *ObjectNotFoundError) Is(target error) bool {
	return target == ErrObjectNotFound
}

package mutation

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrReadOnlyProperty  = errors.New("property is read-only")
	ErrWriteOnceProperty = errors.New("property can only be set on creation")
)

// TransactionError wraps the failure that rolled a transaction back. It
// matches both ErrTransactionFailed and the underlying cause.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %v", e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// PropertyError reports a write that the property policy rejected.
type PropertyError struct {
	Type string
	Key  string
	Err  error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Type, e.Key, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }

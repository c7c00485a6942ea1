package store

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Sentinel errors, matching the flat-list convention of channeldb/error.go
// and the taxonomy spec.md §7 names for the store layer.
var (
	ErrNoSuchChannel = fmt.Errorf("store: no channel with that label")
	ErrChannelExists = fmt.Errorf("store: a channel with that label already exists")

	// ErrUnexpectedState is returned when a compare-and-swap transaction
	// finds a different state label than the one it expected.
	ErrUnexpectedState = fmt.Errorf("store: unexpected channel state")

	// ErrUncloseableState is returned by WithCloseableChannel when the
	// current state is Dispute or Closed.
	ErrUncloseableState = fmt.Errorf("store: channel state cannot be closed")

	// ErrNotMigrated is returned when a store is used before its schema
	// migrations have been run.
	ErrNotMigrated = fmt.Errorf("store: schema migrations have not been run")
)

// StoreError wraps an underlying storage I/O failure, matching spec.md
// §7's StoreError kind. It carries a stack trace pinned to the call that
// produced it (via go-errors/errors), surfaced through ErrorStack for
// diagnostic logging without cluttering Error()'s message.
type StoreError struct {
	Op    string
	Err   error
	stack *goerrors.Error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrorStack returns the stack trace captured at the point this error was
// constructed, for callers that log unexpected storage failures.
func (e *StoreError) ErrorStack() string { return e.stack.ErrorStack() }

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err, stack: goerrors.Wrap(err, 1)}
}

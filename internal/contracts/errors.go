package contracts

import (
	"errors"
	"fmt"
)

// RejectionError is an expected, routine rejection from the filter, the
// normalizer, or ledger admission. It is recorded and never retried.
type RejectionError struct {
	Stage  Stage
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Stage, e.Reason)
}

// NewRejection builds a RejectionError for the given stage and reason.
func NewRejection(stage Stage, reason string) *RejectionError {
	return &RejectionError{Stage: stage, Reason: reason}
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// UnavailableError wraps a collaborator failure (interpreter, venue, price
// lookup, content source). The work is retried at the next natural cycle,
// never in a tight loop.
type UnavailableError struct {
	Collaborator string
	Err          error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// NewUnavailable wraps err as a collaborator failure.
func NewUnavailable(collaborator string, err error) *UnavailableError {
	return &UnavailableError{Collaborator: collaborator, Err: err}
}

// IsUnavailable reports whether err is a collaborator failure.
func IsUnavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}

// InvariantError reports a duplicate or capacity race detected at commit
// time: an order was filled at the venue but the position can no longer be
// recorded without violating a ledger invariant. The filled order is an
// orphan that needs manual reconciliation; there is no automatic retry.
type InvariantError struct {
	Ticker string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s: %s", e.Ticker, e.Detail)
}

// IsInvariantViolation reports whether err is a commit-time invariant breach.
func IsInvariantViolation(err error) bool {
	var iv *InvariantError
	return errors.As(err, &iv)
}

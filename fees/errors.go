/*
errors.go - Error types for the fee reconciliation core

PURPOSE:
  The core is pure and almost total: missing data and malformed contracts
  produce nil results, not errors. The one genuine failure mode is an
  invalid applied range handed to ExpandPeriods.

USAGE:
  if errors.Is(err, fees.ErrInvalidRange) {
      // reject the payment form input
  }
*/
package fees

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when an applied period range cannot be
// expanded: the end precedes the start, the kinds do not match the
// schedule, or an index is out of range.
var ErrInvalidRange = errors.New("invalid period range")

// RangeError carries the offending endpoints for an invalid range.
type RangeError struct {
	Start  Period
	End    Period
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid period range %s..%s: %s", e.Start.Label(), e.End.Label(), e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

/*
Package fees provides the fee and period reconciliation core.

PURPOSE:
  This package contains the pure computation layer of the 401(k) payment
  tracking system: deriving expected fees from contract terms, expanding a
  payment's applied range into billing periods, and classifying the variance
  between expected and actual fees.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: Advisory contract terms (flat or percentage fee, cadence)
  - FeeType / Schedule: The two enums that drive every calculation
  - Variance: The result of comparing expected vs. actual fees

DESIGN PRINCIPLES:
  1. Purity: No I/O, no clocks read implicitly, no shared mutable state.
     Callers pass already-resolved values (including "today" where needed).
  2. Precision: Uses decimal.Decimal end to end; rounding to cents happens
     only at formatting/display boundaries, never mid-computation.
  3. Missing data is not an error: A percentage contract without an AUM
     snapshot yields a nil fee, which propagates to an "unknown" variance.
     It is never coerced to zero.

USAGE:
  result := fees.ComputeExpectedFee(contract, &totalAssets)
  if result.Fee != nil {
      v := fees.Classify(result.Fee, actualFee)
      fmt.Println(v.Status, v.Message)
  }

SEE ALSO:
  - calculator.go: Expected fee and reference rate derivation
  - period.go: Billing period expansion and split detection
  - variance.go: Variance classification thresholds
*/
package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FEE TYPE & PAYMENT SCHEDULE
// =============================================================================

type FeeType string

const (
	FeeFlat       FeeType = "flat"
	FeePercentage FeeType = "percentage"
)

// ParseFeeType normalizes a stored fee type string. Legacy rows use
// "percent" interchangeably with "percentage".
func ParseFeeType(s string) FeeType {
	switch s {
	case "flat":
		return FeeFlat
	case "percentage", "percent":
		return FeePercentage
	default:
		return FeeType(s)
	}
}

type Schedule string

const (
	ScheduleMonthly   Schedule = "monthly"
	ScheduleQuarterly Schedule = "quarterly"
)

// PeriodsPerYear returns how many billing periods the schedule has in a year.
func (s Schedule) PeriodsPerYear() int {
	if s == ScheduleMonthly {
		return 12
	}
	return 4
}

// Kind returns the period kind produced by this schedule.
func (s Schedule) Kind() PeriodKind {
	if s == ScheduleMonthly {
		return KindMonth
	}
	return KindQuarter
}

// =============================================================================
// CONTRACT - Advisory contract terms
// =============================================================================

// Contract holds the fee terms for a client's advisory agreement.
// Exactly one of FlatRate/PercentRate should be populated, consistent with
// FeeType. A contract violating that invariant is a data-quality problem:
// calculations answer with nil results rather than erroring.
type Contract struct {
	ContractID     int64
	ClientID       int64
	ContractNumber string
	ProviderName   string
	StartDate      *time.Time
	FeeType        FeeType
	PercentRate    *decimal.Decimal // fraction, e.g. 0.0045 = 0.45%
	FlatRate       *decimal.Decimal // dollar amount per billing period
	Schedule       Schedule
	NumPeople      int
	Notes          string
}

// Rate returns the populated rate at the contract's native cadence, or nil
// if neither rate is set (malformed contract).
func (c Contract) Rate() *decimal.Decimal {
	switch c.FeeType {
	case FeeFlat:
		return c.FlatRate
	case FeePercentage:
		return c.PercentRate
	}
	// Unrecognized fee type: fall back to whichever rate exists so reference
	// tables can still render something for legacy rows.
	if c.FlatRate != nil {
		return c.FlatRate
	}
	return c.PercentRate
}

// =============================================================================
// VARIANCE - Derived at display time, never persisted
// =============================================================================

type VarianceStatus string

const (
	VarianceExact      VarianceStatus = "exact"
	VarianceAcceptable VarianceStatus = "acceptable"
	VarianceWarning    VarianceStatus = "warning"
	VarianceAlert      VarianceStatus = "alert"
	VarianceUnknown    VarianceStatus = "unknown"
)

// Variance is the comparison of an expected fee against the actual fee
// received. Delta and PercentDelta are nil when the expected fee is unknown.
type Variance struct {
	Status       VarianceStatus
	Delta        *decimal.Decimal // actual - expected, signed
	PercentDelta *decimal.Decimal // delta as a percentage of expected
	Message      string
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// D builds a decimal from a float. Test and fixture convenience.
func D(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// DP builds a *decimal from a float for optional fields.
func DP(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// FormatUSD renders a decimal as a dollar amount with two decimal places and
// thousands separators, e.g. "1,234.50". The "$" prefix is the caller's.
func FormatUSD(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	dot := len(s) - 3 // position of the decimal point
	intPart, frac := s[:dot], s[dot:]
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	result := string(out) + frac
	if neg {
		return "-" + result
	}
	return result
}

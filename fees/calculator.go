/*
calculator.go - Expected fee computation and reference rate derivation

PURPOSE:
  Answers "what should this payment have been?" for a contract, and scales a
  contract's native-cadence rate to the other cadences for display.

KEY INSIGHT:
  A missing input is not an error. A percentage contract without an AUM
  snapshot simply has no expected fee; the nil result flows through to an
  "unknown" variance so the UI can surface "missing data" instead of a bogus
  zero-dollar expectation.

SEE ALSO:
  - variance.go: Consumes the expected fee produced here
*/
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXPECTED FEE
// =============================================================================

// ExpectedFee is the result of an expected-fee computation. Fee is nil when
// the contract is malformed or the inputs needed for a percentage fee are
// missing; Basis always explains how (or why not) the fee was derived.
type ExpectedFee struct {
	Fee   *decimal.Decimal
	Basis string
}

// ComputeExpectedFee derives the expected fee for one billing period.
//
// Flat contracts return the flat rate regardless of totalAssets. Percentage
// contracts require both the percent rate and an AUM snapshot; the fee is the
// exact product, unrounded. All missing-data and malformed-contract cases
// return a nil fee with an explanatory basis. Never panics, never substitutes
// zero.
func ComputeExpectedFee(contract Contract, totalAssets *decimal.Decimal) ExpectedFee {
	switch contract.FeeType {
	case FeeFlat:
		if contract.FlatRate == nil {
			return ExpectedFee{Basis: "Flat fee (missing rate)"}
		}
		rate := *contract.FlatRate
		return ExpectedFee{Fee: &rate, Basis: "Flat fee"}

	case FeePercentage:
		if totalAssets == nil || contract.PercentRate == nil {
			return ExpectedFee{Basis: "Percentage fee (missing data)"}
		}
		fee := totalAssets.Mul(*contract.PercentRate)
		ratePct := contract.PercentRate.Mul(decimal.NewFromInt(100))
		return ExpectedFee{
			Fee:   &fee,
			Basis: fmt.Sprintf("%s%% of $%s", ratePct.StringFixed(4), FormatUSD(*totalAssets)),
		}
	}

	return ExpectedFee{Basis: "Unknown fee type"}
}

// =============================================================================
// REFERENCE RATES
// =============================================================================

// ReferenceRates shows the contract's rate scaled to each cadence. The values
// are flat dollar amounts or percentage fractions depending on the contract's
// fee type; the scaling ratios are the same either way.
type ReferenceRates struct {
	Monthly   decimal.Decimal
	Quarterly decimal.Decimal
	Annual    decimal.Decimal
}

var (
	three  = decimal.NewFromInt(3)
	four   = decimal.NewFromInt(4)
	twelve = decimal.NewFromInt(12)
)

// DeriveReferenceRates scales the contract's native-cadence rate to monthly,
// quarterly and annual equivalents. Monthly rates scale x3 to quarterly and
// x12 to annual; quarterly rates scale /3 to monthly and x4 to annual.
// Returns nil when the contract has no rate populated.
func DeriveReferenceRates(contract Contract) *ReferenceRates {
	rate := contract.Rate()
	if rate == nil {
		return nil
	}

	if contract.Schedule == ScheduleMonthly {
		return &ReferenceRates{
			Monthly:   *rate,
			Quarterly: rate.Mul(three),
			Annual:    rate.Mul(twelve),
		}
	}
	return &ReferenceRates{
		Monthly:   rate.Div(three),
		Quarterly: *rate,
		Annual:    rate.Mul(four),
	}
}

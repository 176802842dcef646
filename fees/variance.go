/*
variance.go - Expected vs. actual fee classification

PURPOSE:
  Compares the expected fee against the payment actually received and
  assigns a severity band for display. This is a pure, total function:
  every input combination maps to a status, and a missing expected fee maps
  to "unknown" rather than an error or a zero-dollar variance.

SEVERITY BANDS (defaults, from DefaultThresholds):
  exact:       |delta| under one cent
  acceptable:  |delta| within 5% of expected
  warning:     |delta| within 15% of expected
  alert:       everything else

SEE ALSO:
  - calculator.go: Produces the expected fee consumed here
*/
package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds configures the variance severity bands. Epsilon is an absolute
// dollar amount; the Pct bands are percentages of the expected fee.
type Thresholds struct {
	Epsilon       decimal.Decimal
	AcceptablePct decimal.Decimal
	WarningPct    decimal.Decimal
}

// DefaultThresholds returns the standard bands: one cent for an exact match,
// 5% acceptable, 15% warning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Epsilon:       decimal.New(1, -2), // $0.01
		AcceptablePct: decimal.NewFromInt(5),
		WarningPct:    decimal.NewFromInt(15),
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Classify compares expected and actual using the default thresholds.
func Classify(expected *decimal.Decimal, actual decimal.Decimal) Variance {
	return ClassifyWith(DefaultThresholds(), expected, actual)
}

// ClassifyWith compares expected and actual fees under the given thresholds.
// A nil expected fee yields VarianceUnknown: no judgment is possible, which
// is distinct from a variance of zero.
func ClassifyWith(t Thresholds, expected *decimal.Decimal, actual decimal.Decimal) Variance {
	if expected == nil {
		return Variance{Status: VarianceUnknown, Message: "missing AUM data"}
	}

	delta := actual.Sub(*expected)
	absDelta := delta.Abs()

	if absDelta.LessThan(t.Epsilon) {
		zero := decimal.Zero
		return Variance{Status: VarianceExact, Delta: &delta, PercentDelta: &zero, Message: "Exact match"}
	}

	direction := "Overpaid"
	if delta.IsNegative() {
		direction = "Underpaid"
	}

	if expected.IsZero() {
		// Percent variance is undefined against a zero expectation.
		return Variance{
			Status:  VarianceAlert,
			Delta:   &delta,
			Message: fmt.Sprintf("%s by $%s", direction, FormatUSD(absDelta)),
		}
	}

	pct := delta.Div(*expected).Mul(hundred)
	message := fmt.Sprintf("%s by $%s (%s%%)", direction, FormatUSD(absDelta), pct.Abs().StringFixed(2))

	status := VarianceAlert
	switch {
	case pct.Abs().LessThanOrEqual(t.AcceptablePct):
		status = VarianceAcceptable
	case pct.Abs().LessThanOrEqual(t.WarningPct):
		status = VarianceWarning
	}

	return Variance{Status: status, Delta: &delta, PercentDelta: &pct, Message: message}
}

// =============================================================================
// COMPLIANCE - Payment recency against the contract cadence
// =============================================================================

type ComplianceColor string

const (
	ComplianceGreen  ComplianceColor = "green"
	ComplianceYellow ComplianceColor = "yellow"
	ComplianceRed    ComplianceColor = "red"
)

// Compliance windows in days. Monthly contracts are expected to pay within
// 45 days; quarterly within 135. The yellow band is the grace window before
// a payment is flagged overdue.
const (
	monthlyGreenDays    = 45
	monthlyYellowDays   = 75
	quarterlyGreenDays  = 135
	quarterlyYellowDays = 195
)

// ComplianceStatus grades how current a client's payments are. A client with
// no payment history is red. An unrecognized schedule is graded on the
// quarterly windows.
func ComplianceStatus(lastPayment *time.Time, schedule Schedule, today time.Time) (ComplianceColor, string) {
	if lastPayment == nil || lastPayment.IsZero() {
		return ComplianceRed, "No payment records found"
	}

	days := int(today.Sub(*lastPayment).Hours() / 24)

	greenDays, yellowDays := quarterlyGreenDays, quarterlyYellowDays
	if schedule == ScheduleMonthly {
		greenDays, yellowDays = monthlyGreenDays, monthlyYellowDays
	}

	switch {
	case days <= greenDays:
		return ComplianceGreen, "Recent payment within acceptable timeframe"
	case days <= yellowDays:
		return ComplianceYellow, "Payment approaching due date"
	default:
		return ComplianceRed, "Payment overdue"
	}
}

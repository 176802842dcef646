package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - A single billing unit (one month or one quarter)
// =============================================================================

type PeriodKind string

const (
	KindMonth   PeriodKind = "month"
	KindQuarter PeriodKind = "quarter"
)

// Period identifies one billing unit. It replaces the ad hoc
// "{index}-{year}" string keys the frontend passed around: equality and
// ordering are defined on the value, not on parsed strings.
type Period struct {
	Kind  PeriodKind
	Index int // month 1-12 or quarter 1-4
	Year  int
}

func Month(m, year int) Period   { return Period{Kind: KindMonth, Index: m, Year: year} }
func Quarter(q, year int) Period { return Period{Kind: KindQuarter, Index: q, Year: year} }

var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Valid reports whether the index is in range for the kind.
func (p Period) Valid() bool {
	switch p.Kind {
	case KindMonth:
		return p.Index >= 1 && p.Index <= 12
	case KindQuarter:
		return p.Index >= 1 && p.Index <= 4
	}
	return false
}

func (p Period) Equal(other Period) bool {
	return p.Kind == other.Kind && p.Index == other.Index && p.Year == other.Year
}

// Before orders periods of the same kind chronologically.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Index < other.Index
}

func (p Period) After(other Period) bool {
	return other.Before(p)
}

// Next returns the following period, rolling the year on overflow
// (December -> January, Q4 -> Q1).
func (p Period) Next() Period {
	max := 12
	if p.Kind == KindQuarter {
		max = 4
	}
	if p.Index >= max {
		return Period{Kind: p.Kind, Index: 1, Year: p.Year + 1}
	}
	return Period{Kind: p.Kind, Index: p.Index + 1, Year: p.Year}
}

// Key returns the "{index}-{year}" identifier used by period selectors.
func (p Period) Key() string {
	return fmt.Sprintf("%d-%d", p.Index, p.Year)
}

// Label returns the human-readable form, e.g. "January 2024" or "Q1 2024".
func (p Period) Label() string {
	if p.Kind == KindMonth && p.Valid() {
		return fmt.Sprintf("%s %d", monthNames[p.Index-1], p.Year)
	}
	return fmt.Sprintf("Q%d %d", p.Index, p.Year)
}

// PeriodForDate returns the billing period containing the given date under
// the schedule's cadence.
func PeriodForDate(schedule Schedule, date time.Time) Period {
	if schedule == ScheduleMonthly {
		return Month(int(date.Month()), date.Year())
	}
	return Quarter((int(date.Month())-1)/3+1, date.Year())
}

// =============================================================================
// RANGE EXPANSION
// =============================================================================

// ExpandPeriods expands an inclusive start/end range into the ordered,
// contiguous sequence of periods it covers. Both endpoints must match the
// schedule's kind and be valid; an end before the start is an
// ErrInvalidRange, never silently clamped.
func ExpandPeriods(schedule Schedule, start, end Period) ([]Period, error) {
	kind := schedule.Kind()
	if start.Kind != kind || end.Kind != kind {
		return nil, &RangeError{Start: start, End: end, Reason: "period kind does not match schedule"}
	}
	if !start.Valid() || !end.Valid() {
		return nil, &RangeError{Start: start, End: end, Reason: "period index out of range"}
	}
	if end.Before(start) {
		return nil, &RangeError{Start: start, End: end, Reason: "end precedes start"}
	}

	periods := []Period{start}
	for current := start; !current.Equal(end); {
		current = current.Next()
		periods = append(periods, current)
	}
	return periods, nil
}

// IsSplit reports whether the applied range spans more than one period.
// Period equality is the single source of truth here: a stored
// is_split_payment flag that disagrees with the periods is treated as a
// stale display hint.
func IsSplit(start, end Period) bool {
	return !start.Equal(end)
}

// =============================================================================
// SPLIT ALLOCATION
// =============================================================================

// PeriodAllocation is one period's share of a split payment.
type PeriodAllocation struct {
	Period Period
	Amount decimal.Decimal
}

// AllocateAcrossPeriods spreads the actual fee evenly across the given
// periods. Amounts are exact decimals; rounding to cents is left to display.
func AllocateAcrossPeriods(actualFee decimal.Decimal, periods []Period) []PeriodAllocation {
	if len(periods) == 0 {
		return nil
	}
	share := actualFee.Div(decimal.NewFromInt(int64(len(periods))))
	allocations := make([]PeriodAllocation, len(periods))
	for i, p := range periods {
		allocations[i] = PeriodAllocation{Period: p, Amount: share}
	}
	return allocations
}

// =============================================================================
// AVAILABLE PERIODS - Selector options for payment entry
// =============================================================================

// PeriodOption is a selectable period for the payment form.
type PeriodOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ListAvailablePeriods enumerates the billing periods a payment can be
// applied to: from the contract's start date (falling back to January 1 of
// the current year when unset) through the period containing today, most
// recent first. Each option is keyed "{index}-{year}".
func ListAvailablePeriods(contract Contract, today time.Time) []PeriodOption {
	start := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if contract.StartDate != nil && !contract.StartDate.IsZero() {
		start = *contract.StartDate
	}

	first := PeriodForDate(contract.Schedule, start)
	last := PeriodForDate(contract.Schedule, today)
	if last.Before(first) {
		return nil
	}

	var options []PeriodOption
	for current := first; ; current = current.Next() {
		options = append(options, PeriodOption{Label: current.Label(), Value: current.Key()})
		if current.Equal(last) {
			break
		}
	}

	// Most recent first for the selector.
	for i, j := 0, len(options)-1; i < j; i, j = i+1, j-1 {
		options[i], options[j] = options[j], options[i]
	}
	return options
}

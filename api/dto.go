/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal row/domain types from the external contract. Currency values
  cross the wire as decimal numbers rounded to cents; dates as ISO-8601
  calendar-date strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Builds these from store rows + fees computations
*/
package api

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/Noodieknoodie/4GPTK/fees"
	"github.com/Noodieknoodie/4GPTK/store/sqlite"
)

// =============================================================================
// CLIENT TYPES
// =============================================================================

// ClientDTO represents a client in list and detail responses.
type ClientDTO struct {
	ClientID          int64    `json:"client_id"`
	DisplayName       string   `json:"display_name"`
	FullName          string   `json:"full_name,omitempty"`
	ProviderName      string   `json:"provider_name,omitempty"`
	LastPaymentDate   string   `json:"last_payment_date,omitempty"`
	LastPaymentAmount *float64 `json:"last_payment_amount,omitempty"`
	ComplianceStatus  string   `json:"compliance_status"`
	ComplianceReason  string   `json:"compliance_reason,omitempty"`
}

// ClientSummaryDTO is the full client dashboard payload.
type ClientSummaryDTO struct {
	Client             ClientDTO              `json:"client"`
	Contract           *ContractDTO           `json:"contract,omitempty"`
	Metrics            *MetricsDTO            `json:"metrics,omitempty"`
	QuarterlySummaries []QuarterlySummaryDTO  `json:"quarterly_summaries"`
	YearlySummaries    []YearlySummaryDTO     `json:"yearly_summaries"`
}

// MetricsDTO is the cached per-client metrics block.
type MetricsDTO struct {
	LastPaymentDate     string   `json:"last_payment_date,omitempty"`
	LastPaymentAmount   *float64 `json:"last_payment_amount,omitempty"`
	LastPaymentQuarter  *int64   `json:"last_payment_quarter,omitempty"`
	LastPaymentYear     *int64   `json:"last_payment_year,omitempty"`
	TotalYTDPayments    *float64 `json:"total_ytd_payments,omitempty"`
	AvgQuarterlyPayment *float64 `json:"avg_quarterly_payment,omitempty"`
	LastRecordedAssets  *float64 `json:"last_recorded_assets,omitempty"`
}

// QuarterlySummaryDTO is one quarter's aggregate.
type QuarterlySummaryDTO struct {
	Year          int      `json:"year"`
	Quarter       int      `json:"quarter"`
	TotalPayments *float64 `json:"total_payments,omitempty"`
	TotalAssets   *float64 `json:"total_assets,omitempty"`
	PaymentCount  int      `json:"payment_count"`
	AvgPayment    *float64 `json:"avg_payment,omitempty"`
	ExpectedTotal *float64 `json:"expected_total,omitempty"`
}

// YearlySummaryDTO is one year's aggregate.
type YearlySummaryDTO struct {
	Year          int      `json:"year"`
	TotalPayments *float64 `json:"total_payments,omitempty"`
	TotalAssets   *float64 `json:"total_assets,omitempty"`
	PaymentCount  int      `json:"payment_count"`
	AvgPayment    *float64 `json:"avg_payment,omitempty"`
	YoYGrowth     *float64 `json:"yoy_growth,omitempty"`
}

// =============================================================================
// CONTRACT TYPES
// =============================================================================

// ContractDTO represents contract terms plus the derived reference rates.
type ContractDTO struct {
	ContractID        int64              `json:"contract_id"`
	ClientID          int64              `json:"client_id"`
	ContractNumber    string             `json:"contract_number,omitempty"`
	ProviderName      string             `json:"provider_name,omitempty"`
	ContractStartDate string             `json:"contract_start_date,omitempty"`
	FeeType           string             `json:"fee_type"`
	PercentRate       *float64           `json:"percent_rate,omitempty"`
	FlatRate          *float64           `json:"flat_rate,omitempty"`
	PaymentSchedule   string             `json:"payment_schedule"`
	NumPeople         *int64             `json:"num_people,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	ReferenceRates    *ReferenceRatesDTO `json:"reference_rates,omitempty"`
}

// ReferenceRatesDTO shows the contract's rate at each cadence, formatted
// per the fee type ("$3,750.00" for flat, "0.4500%" for percentage).
type ReferenceRatesDTO struct {
	Monthly   string `json:"monthly"`
	Quarterly string `json:"quarterly"`
	Annual    string `json:"annual"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO is a payment enriched with display details. IsSplitPayment is
// derived from period equality at response time; the variance is computed
// fresh and never persisted.
type PaymentDTO struct {
	PaymentID    int64    `json:"payment_id"`
	ContractID   int64    `json:"contract_id"`
	ClientID     int64    `json:"client_id"`
	ReceivedDate string   `json:"received_date"`
	TotalAssets  *float64 `json:"total_assets,omitempty"`
	ExpectedFee  *float64 `json:"expected_fee,omitempty"`
	ActualFee    float64  `json:"actual_fee"`
	Method       string   `json:"method,omitempty"`
	Notes        string   `json:"notes,omitempty"`

	AppliedStartMonth       *int64 `json:"applied_start_month,omitempty"`
	AppliedStartMonthYear   *int64 `json:"applied_start_month_year,omitempty"`
	AppliedEndMonth         *int64 `json:"applied_end_month,omitempty"`
	AppliedEndMonthYear     *int64 `json:"applied_end_month_year,omitempty"`
	AppliedStartQuarter     *int64 `json:"applied_start_quarter,omitempty"`
	AppliedStartQuarterYear *int64 `json:"applied_start_quarter_year,omitempty"`
	AppliedEndQuarter       *int64 `json:"applied_end_quarter,omitempty"`
	AppliedEndQuarterYear   *int64 `json:"applied_end_quarter_year,omitempty"`

	ClientName      string `json:"client_name,omitempty"`
	ProviderName    string `json:"provider_name,omitempty"`
	FeeType         string `json:"fee_type,omitempty"`
	PaymentSchedule string `json:"payment_schedule,omitempty"`

	IsSplitPayment bool                 `json:"is_split_payment"`
	Periods        []PeriodAmountDTO    `json:"periods,omitempty"`
	Variance       *VarianceDTO         `json:"variance,omitempty"`
}

// PeriodAmountDTO is one billing period's share of a split payment.
type PeriodAmountDTO struct {
	Period string  `json:"period"`
	Amount float64 `json:"amount"`
}

// VarianceDTO is the expected-vs-actual classification for display.
type VarianceDTO struct {
	Status            string   `json:"status"`
	Difference        *float64 `json:"difference,omitempty"`
	PercentDifference *float64 `json:"percent_difference,omitempty"`
	Message           string   `json:"message"`
}

// PaymentRequest is the create/update request body. The applied range uses
// the column group matching the contract's schedule; the other group is
// ignored. An omitted expected_fee is computed from the contract at entry
// time and stored as a snapshot.
type PaymentRequest struct {
	ContractID   int64    `json:"contract_id"`
	ClientID     int64    `json:"client_id"`
	ReceivedDate string   `json:"received_date"`
	TotalAssets  *float64 `json:"total_assets,omitempty"`
	ExpectedFee  *float64 `json:"expected_fee,omitempty"`
	ActualFee    *float64 `json:"actual_fee"`
	Method       string   `json:"method,omitempty"`
	Notes        string   `json:"notes,omitempty"`

	AppliedStartMonth       *int `json:"applied_start_month,omitempty"`
	AppliedStartMonthYear   *int `json:"applied_start_month_year,omitempty"`
	AppliedEndMonth         *int `json:"applied_end_month,omitempty"`
	AppliedEndMonthYear     *int `json:"applied_end_month_year,omitempty"`
	AppliedStartQuarter     *int `json:"applied_start_quarter,omitempty"`
	AppliedStartQuarterYear *int `json:"applied_start_quarter_year,omitempty"`
	AppliedEndQuarter       *int `json:"applied_end_quarter,omitempty"`
	AppliedEndQuarterYear   *int `json:"applied_end_quarter_year,omitempty"`
}

// AvailablePeriodsDTO wraps the period selector options.
type AvailablePeriodsDTO struct {
	Periods []fees.PeriodOption `json:"periods"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	v, _ := d.Decimal.Round(2).Float64()
	return &v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func toContractDTO(row sqlite.Contract) ContractDTO {
	dto := ContractDTO{
		ContractID:        row.ContractID,
		ClientID:          row.ClientID,
		ContractNumber:    row.ContractNumber.String,
		ProviderName:      row.ProviderName.String,
		ContractStartDate: row.ContractStartDate.String,
		FeeType:           row.FeeType,
		PaymentSchedule:   row.PaymentSchedule,
		Notes:             row.Notes.String,
		NumPeople:         intPtr(row.NumPeople),
	}
	if row.PercentRate.Valid {
		v, _ := row.PercentRate.Decimal.Float64()
		dto.PercentRate = &v
	}
	if row.FlatRate.Valid {
		v, _ := row.FlatRate.Decimal.Round(2).Float64()
		dto.FlatRate = &v
	}

	contract := row.Domain()
	if rates := fees.DeriveReferenceRates(contract); rates != nil {
		dto.ReferenceRates = &ReferenceRatesDTO{
			Monthly:   formatRate(contract.FeeType, rates.Monthly),
			Quarterly: formatRate(contract.FeeType, rates.Quarterly),
			Annual:    formatRate(contract.FeeType, rates.Annual),
		}
	}
	return dto
}

func formatRate(feeType fees.FeeType, rate decimal.Decimal) string {
	if feeType == fees.FeePercentage {
		return rate.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%"
	}
	return "$" + fees.FormatUSD(rate)
}

func toVarianceDTO(v fees.Variance) *VarianceDTO {
	dto := &VarianceDTO{Status: string(v.Status), Message: v.Message}
	if v.Delta != nil {
		d, _ := v.Delta.Round(2).Float64()
		dto.Difference = &d
	}
	if v.PercentDelta != nil {
		p, _ := v.PercentDelta.Round(2).Float64()
		dto.PercentDifference = &p
	}
	return dto
}

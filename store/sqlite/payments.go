package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Noodieknoodie/4GPTK/fees"
)

// =============================================================================
// PAYMENT ROWS
// =============================================================================

// Payment is a payment row. The applied range lives in one of two mutually
// exclusive column groups depending on the contract's schedule.
type Payment struct {
	PaymentID    int64               `db:"payment_id"`
	ContractID   int64               `db:"contract_id"`
	ClientID     int64               `db:"client_id"`
	ReceivedDate string              `db:"received_date"`
	TotalAssets  decimal.NullDecimal `db:"total_assets"`
	ExpectedFee  decimal.NullDecimal `db:"expected_fee"`
	ActualFee    decimal.Decimal     `db:"actual_fee"`
	Method       sql.NullString      `db:"method"`
	Notes        sql.NullString      `db:"notes"`

	AppliedStartMonth     sql.NullInt64 `db:"applied_start_month"`
	AppliedStartMonthYear sql.NullInt64 `db:"applied_start_month_year"`
	AppliedEndMonth       sql.NullInt64 `db:"applied_end_month"`
	AppliedEndMonthYear   sql.NullInt64 `db:"applied_end_month_year"`

	AppliedStartQuarter     sql.NullInt64 `db:"applied_start_quarter"`
	AppliedStartQuarterYear sql.NullInt64 `db:"applied_start_quarter_year"`
	AppliedEndQuarter       sql.NullInt64 `db:"applied_end_quarter"`
	AppliedEndQuarterYear   sql.NullInt64 `db:"applied_end_quarter_year"`
}

// PaymentDetail is a payment joined with client and contract fields for
// display.
type PaymentDetail struct {
	Payment
	ClientName      sql.NullString      `db:"client_name"`
	ProviderName    sql.NullString      `db:"provider_name"`
	FeeType         sql.NullString      `db:"fee_type"`
	PercentRate     decimal.NullDecimal `db:"percent_rate"`
	FlatRate        decimal.NullDecimal `db:"flat_rate"`
	PaymentSchedule sql.NullString      `db:"payment_schedule"`
}

// AppliedRange resolves the stored period columns into Period values.
// Returns ok=false when neither column group is populated.
func (p Payment) AppliedRange() (start, end fees.Period, ok bool) {
	if p.AppliedStartMonth.Valid && p.AppliedEndMonth.Valid {
		start = fees.Month(int(p.AppliedStartMonth.Int64), int(p.AppliedStartMonthYear.Int64))
		end = fees.Month(int(p.AppliedEndMonth.Int64), int(p.AppliedEndMonthYear.Int64))
		return start, end, true
	}
	if p.AppliedStartQuarter.Valid && p.AppliedEndQuarter.Valid {
		start = fees.Quarter(int(p.AppliedStartQuarter.Int64), int(p.AppliedStartQuarterYear.Int64))
		end = fees.Quarter(int(p.AppliedEndQuarter.Int64), int(p.AppliedEndQuarterYear.Int64))
		return start, end, true
	}
	return fees.Period{}, fees.Period{}, false
}

// SetAppliedRange stores the range into the column group for the given
// schedule and clears the other group.
func (p *Payment) SetAppliedRange(schedule fees.Schedule, start, end fees.Period) {
	clear := func(cols ...*sql.NullInt64) {
		for _, c := range cols {
			*c = sql.NullInt64{}
		}
	}
	set := func(v int) sql.NullInt64 { return sql.NullInt64{Int64: int64(v), Valid: true} }

	if schedule == fees.ScheduleMonthly {
		p.AppliedStartMonth = set(start.Index)
		p.AppliedStartMonthYear = set(start.Year)
		p.AppliedEndMonth = set(end.Index)
		p.AppliedEndMonthYear = set(end.Year)
		clear(&p.AppliedStartQuarter, &p.AppliedStartQuarterYear,
			&p.AppliedEndQuarter, &p.AppliedEndQuarterYear)
		return
	}
	p.AppliedStartQuarter = set(start.Index)
	p.AppliedStartQuarterYear = set(start.Year)
	p.AppliedEndQuarter = set(end.Index)
	p.AppliedEndQuarterYear = set(end.Year)
	clear(&p.AppliedStartMonth, &p.AppliedStartMonthYear,
		&p.AppliedEndMonth, &p.AppliedEndMonthYear)
}

// =============================================================================
// QUERIES
// =============================================================================

const paymentDetailQuery = `
	SELECT
		p.payment_id, p.contract_id, p.client_id, p.received_date,
		p.total_assets, p.expected_fee, p.actual_fee, p.method, p.notes,
		p.applied_start_month, p.applied_start_month_year,
		p.applied_end_month, p.applied_end_month_year,
		p.applied_start_quarter, p.applied_start_quarter_year,
		p.applied_end_quarter, p.applied_end_quarter_year,
		c.display_name AS client_name, co.provider_name, co.fee_type,
		co.percent_rate, co.flat_rate, co.payment_schedule
	FROM payments p
	JOIN clients c ON p.client_id = c.client_id
	LEFT JOIN contracts co ON p.contract_id = co.contract_id`

// ListClientPayments returns a page of the client's payments, newest first.
// A non-nil year restricts results to payments whose applied range touches
// that year.
func (s *Store) ListClientPayments(ctx context.Context, clientID int64, page, limit int, year *int) ([]PaymentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	query := paymentDetailQuery + `
	WHERE p.client_id = ? AND p.valid_to IS NULL`
	args := []any{clientID}

	if year != nil {
		query += ` AND (
			p.applied_start_month_year = ? OR p.applied_end_month_year = ? OR
			p.applied_start_quarter_year = ? OR p.applied_end_quarter_year = ?)`
		args = append(args, *year, *year, *year, *year)
	}

	query += ` ORDER BY p.received_date DESC, p.payment_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	var payments []PaymentDetail
	if err := s.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("list payments for client %d: %w", clientID, err)
	}
	return payments, nil
}

// GetPayment returns a single active payment with its joined details, or
// nil if not found.
func (s *Store) GetPayment(ctx context.Context, paymentID int64) (*PaymentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPaymentLocked(ctx, paymentID)
}

func (s *Store) getPaymentLocked(ctx context.Context, paymentID int64) (*PaymentDetail, error) {
	query := paymentDetailQuery + ` WHERE p.payment_id = ? AND p.valid_to IS NULL`

	var payment PaymentDetail
	err := s.db.GetContext(ctx, &payment, query, paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", paymentID, err)
	}
	return &payment, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreatePayment inserts a payment and refreshes the client's cached
// metrics. Returns the new payment id.
func (s *Store) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO payments
		(contract_id, client_id, received_date, total_assets, expected_fee,
		 actual_fee, method, notes,
		 applied_start_month, applied_start_month_year,
		 applied_end_month, applied_end_month_year,
		 applied_start_quarter, applied_start_quarter_year,
		 applied_end_quarter, applied_end_quarter_year)
		VALUES
		(:contract_id, :client_id, :received_date, :total_assets, :expected_fee,
		 :actual_fee, :method, :notes,
		 :applied_start_month, :applied_start_month_year,
		 :applied_end_month, :applied_end_month_year,
		 :applied_start_quarter, :applied_start_quarter_year,
		 :applied_end_quarter, :applied_end_quarter_year)`, p)
	if err != nil {
		return 0, fmt.Errorf("create payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := s.refreshClientMetricsLocked(ctx, p.ClientID); err != nil {
		return id, err
	}
	return id, nil
}

// UpdatePayment replaces a payment's fields. The caller is expected to have
// set the applied range through SetAppliedRange so the stale column group is
// nulled. Returns false when the payment does not exist.
func (s *Store) UpdatePayment(ctx context.Context, p Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE payments SET
			contract_id = :contract_id,
			client_id = :client_id,
			received_date = :received_date,
			total_assets = :total_assets,
			expected_fee = :expected_fee,
			actual_fee = :actual_fee,
			method = :method,
			notes = :notes,
			applied_start_month = :applied_start_month,
			applied_start_month_year = :applied_start_month_year,
			applied_end_month = :applied_end_month,
			applied_end_month_year = :applied_end_month_year,
			applied_start_quarter = :applied_start_quarter,
			applied_start_quarter_year = :applied_start_quarter_year,
			applied_end_quarter = :applied_end_quarter,
			applied_end_quarter_year = :applied_end_quarter_year
		WHERE payment_id = :payment_id AND valid_to IS NULL`, p)
	if err != nil {
		return false, fmt.Errorf("update payment %d: %w", p.PaymentID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	return true, s.refreshClientMetricsLocked(ctx, p.ClientID)
}

// DeletePayment soft-deletes a payment. Returns false when the payment does
// not exist or is already deleted.
func (s *Store) DeletePayment(ctx context.Context, paymentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getPaymentLocked(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE payments SET valid_to = CURRENT_TIMESTAMP WHERE payment_id = ?`,
		paymentID)
	if err != nil {
		return false, fmt.Errorf("delete payment %d: %w", paymentID, err)
	}

	return true, s.refreshClientMetricsLocked(ctx, existing.ClientID)
}

/*
summaries.go - Cached client metrics and period aggregates

PURPOSE:
  The dashboard's client list and summary card read from cached rows rather
  than aggregating payments on every request. client_metrics is refreshed
  inline after each payment mutation; quarterly/yearly summaries are rebuilt
  by the scheduler (and on demand).

ATTRIBUTION:
  Payments are attributed to the year/quarter of their applied START period.
  Monthly periods map to quarters as (month-1)/3+1.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROW TYPES
// =============================================================================

// ClientMetrics caches last-payment and rolling figures for a client.
type ClientMetrics struct {
	ClientID            int64               `db:"client_id"`
	LastPaymentDate     sql.NullString      `db:"last_payment_date"`
	LastPaymentAmount   decimal.NullDecimal `db:"last_payment_amount"`
	LastPaymentQuarter  sql.NullInt64       `db:"last_payment_quarter"`
	LastPaymentYear     sql.NullInt64       `db:"last_payment_year"`
	TotalYTDPayments    decimal.NullDecimal `db:"total_ytd_payments"`
	AvgQuarterlyPayment decimal.NullDecimal `db:"avg_quarterly_payment"`
	LastRecordedAssets  decimal.NullDecimal `db:"last_recorded_assets"`
	LastUpdated         sql.NullString      `db:"last_updated"`
}

// QuarterlySummary aggregates a client's payments for one quarter.
type QuarterlySummary struct {
	ClientID      int64               `db:"client_id"`
	Year          int                 `db:"year"`
	Quarter       int                 `db:"quarter"`
	TotalPayments decimal.NullDecimal `db:"total_payments"`
	TotalAssets   decimal.NullDecimal `db:"total_assets"`
	PaymentCount  int                 `db:"payment_count"`
	AvgPayment    decimal.NullDecimal `db:"avg_payment"`
	ExpectedTotal decimal.NullDecimal `db:"expected_total"`
}

// YearlySummary aggregates a client's payments for one year.
type YearlySummary struct {
	ClientID      int64               `db:"client_id"`
	Year          int                 `db:"year"`
	TotalPayments decimal.NullDecimal `db:"total_payments"`
	TotalAssets   decimal.NullDecimal `db:"total_assets"`
	PaymentCount  int                 `db:"payment_count"`
	AvgPayment    decimal.NullDecimal `db:"avg_payment"`
	YoYGrowth     decimal.NullDecimal `db:"yoy_growth"`
}

// =============================================================================
// CLIENT METRICS
// =============================================================================

// GetClientMetrics returns the cached metrics for a client, or nil when the
// client has no payment history.
func (s *Store) GetClientMetrics(ctx context.Context, clientID int64) (*ClientMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metrics ClientMetrics
	err := s.db.GetContext(ctx, &metrics,
		`SELECT client_id, last_payment_date, last_payment_amount,
		        last_payment_quarter, last_payment_year, total_ytd_payments,
		        avg_quarterly_payment, last_recorded_assets, last_updated
		 FROM client_metrics WHERE client_id = ?`, clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics for client %d: %w", clientID, err)
	}
	return &metrics, nil
}

// RefreshClientMetrics recomputes the cached metrics from the payments
// table. Called after every payment mutation and by the scheduler.
func (s *Store) RefreshClientMetrics(ctx context.Context, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshClientMetricsLocked(ctx, clientID)
}

func (s *Store) refreshClientMetricsLocked(ctx context.Context, clientID int64) error {
	type latestRow struct {
		ReceivedDate string              `db:"received_date"`
		ActualFee    decimal.NullDecimal `db:"actual_fee"`
		Quarter      sql.NullInt64       `db:"quarter"`
		Year         sql.NullInt64       `db:"year"`
		TotalAssets  decimal.NullDecimal `db:"total_assets"`
	}

	var latest latestRow
	err := s.db.GetContext(ctx, &latest, `
		SELECT received_date, actual_fee,
			CASE
				WHEN applied_start_quarter IS NOT NULL THEN applied_start_quarter
				ELSE (applied_start_month - 1) / 3 + 1
			END AS quarter,
			COALESCE(applied_start_quarter_year, applied_start_month_year) AS year,
			total_assets
		FROM payments
		WHERE client_id = ? AND valid_to IS NULL
		ORDER BY received_date DESC, payment_id DESC
		LIMIT 1`, clientID)
	if err == sql.ErrNoRows {
		// No payments left: drop the cached row so the client reads as
		// having no history.
		_, err = s.db.ExecContext(ctx, `DELETE FROM client_metrics WHERE client_id = ?`, clientID)
		return err
	}
	if err != nil {
		return fmt.Errorf("latest payment for client %d: %w", clientID, err)
	}

	currentYear := time.Now().UTC().Year()
	var ytd decimal.NullDecimal
	err = s.db.GetContext(ctx, &ytd, `
		SELECT SUM(actual_fee)
		FROM payments
		WHERE client_id = ? AND valid_to IS NULL
		AND (applied_start_quarter_year = ? OR applied_start_month_year = ?)`,
		clientID, currentYear, currentYear)
	if err != nil {
		return fmt.Errorf("ytd total for client %d: %w", clientID, err)
	}

	var avgQuarterly decimal.NullDecimal
	err = s.db.GetContext(ctx, &avgQuarterly, `
		SELECT AVG(total_payments) FROM (
			SELECT total_payments
			FROM quarterly_summaries
			WHERE client_id = ?
			ORDER BY year DESC, quarter DESC
			LIMIT 8
		)`, clientID)
	if err != nil {
		return fmt.Errorf("avg quarterly for client %d: %w", clientID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_metrics
		(client_id, last_payment_date, last_payment_amount, last_payment_quarter,
		 last_payment_year, total_ytd_payments, avg_quarterly_payment,
		 last_recorded_assets, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(client_id) DO UPDATE SET
			last_payment_date = excluded.last_payment_date,
			last_payment_amount = excluded.last_payment_amount,
			last_payment_quarter = excluded.last_payment_quarter,
			last_payment_year = excluded.last_payment_year,
			total_ytd_payments = excluded.total_ytd_payments,
			avg_quarterly_payment = excluded.avg_quarterly_payment,
			last_recorded_assets = excluded.last_recorded_assets,
			last_updated = CURRENT_TIMESTAMP`,
		clientID, latest.ReceivedDate, latest.ActualFee, latest.Quarter,
		latest.Year, ytd, avgQuarterly, latest.TotalAssets)
	if err != nil {
		return fmt.Errorf("upsert metrics for client %d: %w", clientID, err)
	}
	return nil
}

// =============================================================================
// SUMMARY AGGREGATES
// =============================================================================

// QuarterlySummaries returns the most recent quarterly aggregates for a
// client, newest first.
func (s *Store) QuarterlySummaries(ctx context.Context, clientID int64, limit int) ([]QuarterlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 8
	}
	var summaries []QuarterlySummary
	err := s.db.SelectContext(ctx, &summaries, `
		SELECT client_id, year, quarter, total_payments, total_assets,
		       payment_count, avg_payment, expected_total
		FROM quarterly_summaries
		WHERE client_id = ?
		ORDER BY year DESC, quarter DESC
		LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("quarterly summaries for client %d: %w", clientID, err)
	}
	return summaries, nil
}

// YearlySummaries returns the most recent yearly aggregates for a client,
// newest first.
func (s *Store) YearlySummaries(ctx context.Context, clientID int64, limit int) ([]YearlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 5
	}
	var summaries []YearlySummary
	err := s.db.SelectContext(ctx, &summaries, `
		SELECT client_id, year, total_payments, total_assets,
		       payment_count, avg_payment, yoy_growth
		FROM yearly_summaries
		WHERE client_id = ?
		ORDER BY year DESC
		LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("yearly summaries for client %d: %w", clientID, err)
	}
	return summaries, nil
}

// RebuildSummaries recomputes the quarterly and yearly aggregate tables for
// one client from the payments table.
func (s *Store) RebuildSummaries(ctx context.Context, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM quarterly_summaries WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("clear quarterly summaries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM yearly_summaries WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("clear yearly summaries: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarterly_summaries
		(client_id, year, quarter, total_payments, total_assets,
		 payment_count, avg_payment, expected_total)
		SELECT
			client_id,
			COALESCE(applied_start_quarter_year, applied_start_month_year) AS year,
			CASE
				WHEN applied_start_quarter IS NOT NULL THEN applied_start_quarter
				ELSE (applied_start_month - 1) / 3 + 1
			END AS quarter,
			SUM(actual_fee), AVG(total_assets), COUNT(*), AVG(actual_fee),
			SUM(expected_fee)
		FROM payments
		WHERE client_id = ? AND valid_to IS NULL
		AND COALESCE(applied_start_quarter_year, applied_start_month_year) IS NOT NULL
		GROUP BY year, quarter`, clientID)
	if err != nil {
		return fmt.Errorf("rebuild quarterly summaries: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO yearly_summaries
		(client_id, year, total_payments, total_assets, payment_count, avg_payment)
		SELECT
			client_id,
			COALESCE(applied_start_quarter_year, applied_start_month_year) AS year,
			SUM(actual_fee), AVG(total_assets), COUNT(*), AVG(actual_fee)
		FROM payments
		WHERE client_id = ? AND valid_to IS NULL
		AND COALESCE(applied_start_quarter_year, applied_start_month_year) IS NOT NULL
		GROUP BY year`, clientID)
	if err != nil {
		return fmt.Errorf("rebuild yearly summaries: %w", err)
	}

	// Year-over-year growth needs the prior year's total, so it is filled in
	// after the aggregates exist.
	_, err = tx.ExecContext(ctx, `
		UPDATE yearly_summaries SET yoy_growth = (
			SELECT (ys.total_payments - prev.total_payments) / prev.total_payments * 100
			FROM yearly_summaries ys
			JOIN yearly_summaries prev
				ON prev.client_id = ys.client_id AND prev.year = ys.year - 1
			WHERE ys.id = yearly_summaries.id AND prev.total_payments != 0
		)
		WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("compute yoy growth: %w", err)
	}

	return tx.Commit()
}
